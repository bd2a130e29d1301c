package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartRedisSubscriber inicia uma goroutine que escuta o canal Redis Pub/Sub
// e repassa cada Update para os clientes inscritos no tópico correspondente.
// Várias instâncias do sync-service compartilham o mesmo canal.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				Dispatch(hub, []byte(msg.Payload), log)
			}
		}
	}()
}

// Dispatch lê o tipo do envelope e entrega os bytes originais ao hub
func Dispatch(hub *Hub, raw []byte, log *zap.Logger) {
	var upd Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		log.Warn("ws subscriber unmarshal error", zap.Error(err))
		return
	}
	hub.Broadcast(upd.Type, raw)
}
