package journal

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/pkg/contracts/events"
)

type memStore struct {
	seen     map[string]events.BetLifecycle
	err      error
	failures int // quantas chamadas ainda falham antes de gravar
	calls    int
}

func (m *memStore) Insert(_ context.Context, e events.BetLifecycle) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	if m.failures > 0 {
		m.failures--
		return false, errors.New("connection refused")
	}
	if _, ok := m.seen[e.EventID]; ok {
		return false, nil
	}
	m.seen[e.EventID] = e
	return true, nil
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

// scriptedReader entrega as mensagens, registra os commits e depois cancela o contexto do Run
type scriptedReader struct {
	msgs      []kafka.Message
	cancel    context.CancelFunc
	committed []int64
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func lifecycleMsg(t *testing.T, e events.BetLifecycle) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Topic: "bet_lifecycle", Key: []byte("7"), Value: b}
}

func validEvent() events.BetLifecycle {
	return events.BetLifecycle{
		EventID:   uuid.NewString(),
		Op:        events.OpEnter,
		BetID:     7,
		Signature: "5h6xBEauJ3PK6SWCZ1PGjBvj8vDdWG3KpwATGy1ARAXFSDwt8GFXM7W5Ncn16wmqokgpiKRLuS83KUxyZyv2sUYv",
		Actor:     "H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG",
		Amount:    100,
		Price:     "51.5",
		Ts:        time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestProcessorRecordsOnceAndDeadLetters(t *testing.T) {
	ev := validEvent()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &memStore{seen: map[string]events.BetLifecycle{}}
	dlq := &fakeWriter{}
	first, again := lifecycleMsg(t, ev), lifecycleMsg(t, ev) // reentrega
	first.Offset, again.Offset = 0, 1
	reader := &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		first,
		again,
		{Topic: "bet_lifecycle", Offset: 2, Key: []byte("x"), Value: []byte("{not json")},
	}}
	var persisted, duplicates, dead int
	p := &Processor{
		Log:         zap.NewNop(),
		Reader:      reader,
		Store:       store,
		DLQ:         dlq,
		OnPersisted: func() { persisted++ },
		OnDuplicate: func() { duplicates++ },
		OnDLQ:       func() { dead++ },
	}

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if persisted != 1 || duplicates != 1 || dead != 1 {
		t.Fatalf("persisted=%d duplicates=%d dead=%d", persisted, duplicates, dead)
	}
	if len(store.seen) != 1 {
		t.Fatalf("expected one stored event, got %d", len(store.seen))
	}
	if len(dlq.msgs) != 1 || string(dlq.msgs[0].Value) != "{not json" {
		t.Fatalf("unexpected dlq content: %+v", dlq.msgs)
	}
	var hasErr bool
	for _, h := range dlq.msgs[0].Headers {
		if h.Key == "error" && len(h.Value) > 0 {
			hasErr = true
		}
	}
	if !hasErr {
		t.Fatalf("dlq message should carry the error header")
	}
	if len(reader.committed) != 3 {
		t.Fatalf("stored, duplicate and dead-lettered messages are all committed, got %v", reader.committed)
	}
}

func TestProcessorCommitsOnlyAfterInsert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := lifecycleMsg(t, validEvent())
	m.Offset = 41
	reader := &scriptedReader{cancel: cancel, msgs: []kafka.Message{m}}
	store := &memStore{seen: map[string]events.BetLifecycle{}, failures: 2}
	var persisted int
	p := &Processor{
		Log:          zap.NewNop(),
		Reader:       reader,
		Store:        store,
		RetryBackoff: time.Millisecond,
		OnPersisted:  func() { persisted++ },
	}

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.calls != 3 || persisted != 1 {
		t.Fatalf("expected two failed inserts then one success, calls=%d persisted=%d", store.calls, persisted)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 41 {
		t.Fatalf("offset must be committed once after the insert, got %v", reader.committed)
	}
}

func TestProcessorKeepsOffsetWhileStoreIsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &scriptedReader{cancel: cancel, msgs: []kafka.Message{lifecycleMsg(t, validEvent())}}
	store := &memStore{err: errors.New("db down")}
	p := &Processor{
		Log:          zap.NewNop(),
		Reader:       reader,
		Store:        store,
		RetryBackoff: time.Millisecond,
		OnError: func(string) {
			if store.calls >= 3 {
				cancel()
			}
		},
	}

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(reader.committed) != 0 {
		t.Fatalf("nothing may be committed while the insert fails, got %v", reader.committed)
	}
	if len(reader.msgs) != 0 || store.calls < 3 {
		t.Fatalf("the same message should be retried, calls=%d", store.calls)
	}
}

func TestProcessorStoreFailureIsNotDeadLettered(t *testing.T) {
	dlq := &fakeWriter{}
	var phases []string
	p := &Processor{
		Log:     zap.NewNop(),
		Store:   &memStore{err: errors.New("db down")},
		DLQ:     dlq,
		OnError: func(phase string) { phases = append(phases, phase) },
	}
	if err := p.Handle(context.Background(), lifecycleMsg(t, validEvent())); err == nil {
		t.Fatalf("db failures must be reported for retry")
	}
	if len(dlq.msgs) != 0 {
		t.Fatalf("db failures must not go to the dlq")
	}
	if len(phases) != 1 || phases[0] != "db" {
		t.Fatalf("unexpected error phases: %v", phases)
	}
}

func TestDecodeRejectsIncompleteEvents(t *testing.T) {
	cases := map[string]func(e *events.BetLifecycle){
		"bad uuid":   func(e *events.BetLifecycle) { e.EventID = "42" },
		"unknown op": func(e *events.BetLifecycle) { e.Op = "cancel" },
		"no sig":     func(e *events.BetLifecycle) { e.Signature = "" },
		"no ts":      func(e *events.BetLifecycle) { e.Ts = time.Time{} },
	}
	for name, mutate := range cases {
		ev := validEvent()
		mutate(&ev)
		raw, _ := json.Marshal(ev)
		if _, err := Decode(raw); !errors.Is(err, errInvalidEvent) {
			t.Fatalf("%s: expected errInvalidEvent, got %v", name, err)
		}
	}
	raw, _ := json.Marshal(validEvent())
	if _, err := Decode(raw); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

func TestNumericKeepsFullUint64Range(t *testing.T) {
	for _, v := range []uint64{0, 100, math.MaxInt64 + 1, math.MaxUint64} {
		got, err := parseNumeric("amount", numeric(v))
		if err != nil || got != v {
			t.Fatalf("round trip of %d gave %d (%v)", v, got, err)
		}
	}
	if numeric(math.MaxUint64) != "18446744073709551615" {
		t.Fatalf("unexpected text %q", numeric(math.MaxUint64))
	}
	if _, err := parseNumeric("slot", "-1"); err == nil {
		t.Fatalf("negative values must be rejected")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(Migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected up/down pair, got %v", names)
	}
	up, err := fs.ReadFile(Migrations, "migrations/0001_bet_lifecycle_events.up.sql")
	if err != nil || !strings.Contains(string(up), "UUID        PRIMARY KEY") {
		t.Fatalf("event_id must be the primary key for ON CONFLICT: %v", err)
	}
	for _, col := range []string{"bet_id       NUMERIC(20)", "slot         NUMERIC(20)", "amount       NUMERIC(20)"} {
		if !strings.Contains(string(up), col) {
			t.Fatalf("u64 column %q missing from schema", col)
		}
	}
}
