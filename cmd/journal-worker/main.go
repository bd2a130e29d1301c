package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/journal"
	"github.com/radieske/prediction-bet-sync/internal/shared/config"
	"github.com/radieske/prediction-bet-sync/internal/shared/db"
	"github.com/radieske/prediction-bet-sync/internal/shared/kafka"
	"github.com/radieske/prediction-bet-sync/internal/shared/logger"
	"github.com/radieske/prediction-bet-sync/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "journal-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres + schema
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(pg, journal.Migrations, "migrations"); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}
	log.Info("postgres ready")

	// Consumer group journal-worker + DLQ
	if cfg.Env == "local" || cfg.Env == "dev" {
		tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopics(tctx, cfg.KafkaBrokers, cfg.TopicBetLifecycle, cfg.TopicBetLifecycleDLQ); err != nil {
			log.Warn("failed to create kafka topics", zap.Error(err))
		}
		tcancel()
	}
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetLifecycle, "journal-worker")
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetLifecycleDLQ)
	defer dlq.Close()

	// Métricas Prometheus do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_messages_consumed_total", Help: "mensagens consumidas"})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_events_persisted_total", Help: "eventos gravados"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_events_duplicate_total", Help: "reentregas ignoradas"})
	dead := prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_dlq_total", Help: "mensagens enviadas à DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "journal_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, duplicates, dead, errorsBy)

	proc := &journal.Processor{
		Log:         log,
		Reader:      reader,
		Store:       journal.NewPostgresRepo(pg),
		DLQ:         dlq,
		OnConsumed:  func() { consumed.Inc() },
		OnPersisted: func() { persisted.Inc() },
		OnDuplicate: func() { duplicates.Inc() },
		OnDLQ:       func() { dead.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: pg.PingContext},
	)

	log.Info("journal-worker started", zap.String("topic", cfg.TopicBetLifecycle))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("journal-worker stopped")
}
