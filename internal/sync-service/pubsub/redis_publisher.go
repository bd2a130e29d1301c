package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Tópicos das mensagens enviadas aos clientes WebSocket
const (
	TopicState        = "state"
	TopicNotification = "notification"
)

type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, payload []byte) error {
	return b.r.Publish(ctx, b.channel, payload).Err()
}

// WSUpdate é o envelope padrão que chega no WS do sync-service
type WSUpdate struct {
	Type    string `json:"type"` // state | notification
	Payload any    `json:"payload"`
}
