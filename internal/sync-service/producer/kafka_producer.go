package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/pkg/contracts/events"
)

// messageWriter é o subconjunto do kafka.Writer usado aqui
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica os eventos de ciclo de vida no tópico bet_lifecycle
type KafkaPublisher struct {
	Writer messageWriter
	Topic  string
	log    *zap.Logger
}

func NewKafkaPublisher(w messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topic: topic, log: log}
}

// PublishLifecycle serializa o evento e envia com chave = id da aposta,
// mantendo os eventos de uma mesma aposta na mesma partição
func (p *KafkaPublisher) PublishLifecycle(ctx context.Context, e events.BetLifecycle) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(e.BetID, 10)),
		Value: b,
		Time:  e.Ts,
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish lifecycle event", zap.String("event_id", e.EventID), zap.Error(err))
		return err
	}
	p.log.Debug("published lifecycle event", zap.String("event_id", e.EventID), zap.String("op", e.Op))
	return nil
}
