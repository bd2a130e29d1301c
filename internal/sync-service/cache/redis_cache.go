package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache guarda um único documento JSON numa chave do Redis com TTL.
// O sync-service usa uma instância para o último snapshot e outra para os dados de mercado.
type RedisCache struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

// NewRedisCache cria o cache com chave e TTL configuráveis
func NewRedisCache(c *redis.Client, key string, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, Key: key, TTL: ttl}
}

// Set serializa v e grava com TTL
func (c *RedisCache) Set(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.Key, b, c.TTL).Err()
}

// Get lê o documento em dst; ok=false quando não existe ou expirou
func (c *RedisCache) Get(ctx context.Context, dst any) (bool, error) {
	b, err := c.Client.Get(ctx, c.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}
