package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/lifecycle"
	"github.com/radieske/prediction-bet-sync/internal/shared/config"
	"github.com/radieske/prediction-bet-sync/internal/shared/ledger"
	"github.com/radieske/prediction-bet-sync/internal/syncstore"
)

// App é o que os comandos usam: um Store conectado e o controller sobre ele
type App struct {
	Cfg   config.Config
	Log   *zap.Logger
	Setup *ledger.Setup
	Store *syncstore.Store
	Ctrl  *lifecycle.Controller
}

// NewApp conecta o Store com a identidade do keypair configurado
func NewApp(cfg config.Config, log *zap.Logger) (*App, error) {
	setup, err := ledger.Build(cfg, log)
	if err != nil {
		return nil, err
	}
	key, err := ledger.LoadKeypair(cfg.KeypairPath)
	if err != nil {
		return nil, err
	}

	store := syncstore.New(setup.Factory,
		syncstore.WithLogger(log.Named("store")),
		syncstore.WithFetchTimeout(cfg.FetchTimeout),
	)
	ctrl := lifecycle.New(store, setup.Oracle, setup.ProgramID, lifecycle.WithLogger(log.Named("lifecycle")))

	conn := setup.Connection
	store.SetConnection(&conn)
	store.SetSigner(key)

	return &App{Cfg: cfg, Log: log, Setup: setup, Store: store, Ctrl: ctrl}, nil
}

func (a *App) Close() { a.Store.Close() }

// Wait espera os tipos pedidos saírem de not_loaded/loading. Unavailable vira erro.
func (a *App) Wait(ctx context.Context, kinds ...syncstore.Kind) (syncstore.State, error) {
	if len(kinds) == 0 {
		kinds = syncstore.Kinds
	}
	updates, unsubscribe := a.Store.Subscribe()
	defer unsubscribe()

	st := a.Store.Snapshot()
	for {
		done, err := settled(st, kinds)
		if done {
			return st, err
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("waiting for ledger: %w", ctx.Err())
		case next, ok := <-updates:
			if !ok {
				return st, errors.New("store closed")
			}
			st = next
		}
	}
}

func settled(st syncstore.State, kinds []syncstore.Kind) (bool, error) {
	for _, k := range kinds {
		status, msg := st.Master.Status, st.Master.Error
		if k == syncstore.KindBets {
			status, msg = st.Bets.Status, st.Bets.Error
		}
		switch status {
		case syncstore.StatusReady:
		case syncstore.StatusUnavailable:
			return true, fmt.Errorf("%s unavailable: %s", k, msg)
		default:
			return false, nil
		}
	}
	return true, nil
}

func waitContext(parent context.Context, cfg config.Config) (context.Context, context.CancelFunc) {
	d := cfg.FetchTimeout
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(parent, d+time.Second)
}
