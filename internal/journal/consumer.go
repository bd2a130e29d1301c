// Package journal consome os eventos de ciclo de vida e mantém um histórico em Postgres.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/pkg/contracts/events"
)

// messageReader busca sem commitar; o offset só avança depois que a mensagem foi tratada
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Store é onde os eventos são gravados (PostgresRepo em produção)
type Store interface {
	Insert(ctx context.Context, e events.BetLifecycle) (bool, error)
}

var errInvalidEvent = errors.New("invalid lifecycle event")

const (
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 10 * time.Second
)

// Processor lê bet_lifecycle, grava cada evento uma vez e manda o que não decodifica para a DLQ.
// Entrega at-least-once: o commit vem depois do insert (ou da DLQ), e o insert é idempotente.
// Callbacks de métricas seguem o mesmo padrão dos outros workers.
type Processor struct {
	Log          *zap.Logger
	Reader       messageReader
	Store        Store
	DLQ          messageWriter // opcional
	RetryBackoff time.Duration // primeira espera entre tentativas; dobra até maxRetryBackoff

	OnConsumed  func()
	OnPersisted func()
	OnDuplicate func()
	OnDLQ       func()
	OnError     func(phase string)
}

// Run executa o loop de consumo até o contexto ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		if err := p.handleUntilDone(ctx, m); err != nil {
			return err
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// sem commit a mensagem volta após rebalance; o insert idempotente absorve
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.onError("commit")
		}
	}
}

// handleUntilDone repete Handle com backoff até a mensagem ser tratada ou ctx acabar.
// Não pula a mensagem: commitar um offset posterior perderia esta.
func (p *Processor) handleUntilDone(ctx context.Context, m kafka.Message) error {
	backoff := p.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	for {
		err := p.Handle(ctx, m)
		if err == nil {
			return nil
		}
		p.Log.Warn("lifecycle message will be retried",
			zap.Int64("offset", m.Offset), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// Handle processa uma mensagem. nil quando ela pode ser commitada (gravada, duplicada ou na DLQ);
// erro quando precisa de nova tentativa (banco ou DLQ fora do ar).
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	ev, err := Decode(m.Value)
	if err != nil {
		p.Log.Warn("invalid lifecycle message", zap.ByteString("key", m.Key), zap.Error(err))
		p.onError("decode")
		return p.deadLetter(ctx, m, err)
	}

	inserted, err := p.Store.Insert(ctx, ev)
	if err != nil {
		p.Log.Warn("journal insert failed", zap.String("event_id", ev.EventID), zap.Error(err))
		p.onError("db")
		return fmt.Errorf("insert %s: %w", ev.EventID, err)
	}
	if !inserted {
		p.Log.Debug("duplicate lifecycle event", zap.String("event_id", ev.EventID))
		if p.OnDuplicate != nil {
			p.OnDuplicate()
		}
		return nil
	}
	p.Log.Info("lifecycle event recorded",
		zap.String("event_id", ev.EventID),
		zap.String("op", ev.Op),
		zap.Uint64("bet_id", ev.BetID),
		zap.String("signature", ev.Signature),
	)
	if p.OnPersisted != nil {
		p.OnPersisted()
	}
	return nil
}

// Decode valida o payload: JSON, event_id uuid, op conhecida e assinatura presente
func Decode(raw []byte) (events.BetLifecycle, error) {
	var ev events.BetLifecycle
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, err
	}
	if _, err := uuid.Parse(ev.EventID); err != nil {
		return ev, errors.Join(errInvalidEvent, err)
	}
	switch ev.Op {
	case events.OpCreate, events.OpEnter, events.OpClose, events.OpClaim:
	default:
		return ev, errors.Join(errInvalidEvent, errors.New("unknown op "+ev.Op))
	}
	if ev.Signature == "" || ev.Ts.IsZero() {
		return ev, errors.Join(errInvalidEvent, errors.New("missing signature or ts"))
	}
	return ev, nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if p.DLQ == nil {
		p.Log.Warn("no dlq configured, dropping message", zap.Int64("offset", m.Offset))
		return nil
	}
	msg := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: append(m.Headers,
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "source_topic", Value: []byte(m.Topic)},
		),
	}
	if err := p.DLQ.WriteMessages(ctx, msg); err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
		p.onError("dlq")
		return fmt.Errorf("dlq write: %w", err)
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) onError(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}
