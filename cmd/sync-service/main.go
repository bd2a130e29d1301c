package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/prediction-bet-sync/internal/bet"
	"github.com/radieske/prediction-bet-sync/internal/lifecycle"
	"github.com/radieske/prediction-bet-sync/internal/marketdata"
	sharedcache "github.com/radieske/prediction-bet-sync/internal/shared/cache"
	"github.com/radieske/prediction-bet-sync/internal/shared/config"
	"github.com/radieske/prediction-bet-sync/internal/shared/kafka"
	"github.com/radieske/prediction-bet-sync/internal/shared/ledger"
	"github.com/radieske/prediction-bet-sync/internal/shared/logger"
	"github.com/radieske/prediction-bet-sync/internal/shared/metrics"
	"github.com/radieske/prediction-bet-sync/internal/sync-service/cache"
	httpapi "github.com/radieske/prediction-bet-sync/internal/sync-service/http"
	"github.com/radieske/prediction-bet-sync/internal/sync-service/producer"
	"github.com/radieske/prediction-bet-sync/internal/sync-service/pubsub"
	"github.com/radieske/prediction-bet-sync/internal/sync-service/ws"
	"github.com/radieske/prediction-bet-sync/internal/syncstore"
)

// notification é o payload do tópico "notification" no WebSocket
type notification struct {
	Op        string `json:"op"`
	BetID     uint64 `json:"betId,omitempty"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sync-service"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
		zap.String("ledger_mode", cfg.LedgerMode),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Ledger (rpc ou memory) e oráculo
	setup, err := ledger.Build(cfg, log)
	if err != nil {
		log.Fatal("ledger setup", zap.Error(err))
	}
	key, err := ledger.LoadKeypair(cfg.KeypairPath)
	if err != nil {
		log.Fatal("keypair", zap.Error(err))
	}
	if key == nil {
		log.Warn("no KEYPAIR_PATH configured, running read-only")
	}

	// Métricas Prometheus
	opsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betsync_lifecycle_ops_total", Help: "operações de ciclo de vida por resultado",
	}, []string{"op", "outcome"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betsync_store_fetches_total", Help: "fetches do store por tipo e resultado",
	}, []string{"kind", "outcome"})
	inflight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "betsync_store_inflight", Help: "fetches em andamento por tipo",
	}, []string{"kind"})
	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betsync_broadcasts_total", Help: "mensagens enviadas ao WebSocket por tópico",
	}, []string{"topic"})
	prometheus.MustRegister(opsTotal, fetches, inflight, broadcasts)

	// Store
	store := syncstore.New(setup.Factory,
		syncstore.WithLogger(log.Named("store")),
		syncstore.WithFetchTimeout(cfg.FetchTimeout),
		syncstore.WithFetchObserver(func(k syncstore.Kind, outcome string) {
			fetches.WithLabelValues(string(k), outcome).Inc()
		}),
		syncstore.WithInFlightObserver(func(k syncstore.Kind, delta int) {
			inflight.WithLabelValues(string(k)).Add(float64(delta))
		}),
	)
	defer store.Close()

	// Redis (opcional): cache do snapshot, pub/sub do WS e cache de mercado
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		log.Info("redis connected")
	}

	// WebSocket hub. Com Redis as mensagens passam pelo canal compartilhado entre instâncias.
	hub := ws.NewHub(func(r *http.Request) bool { return true }, log.Named("ws"))
	var broadcaster *pubsub.RedisBroadcaster
	if rdb != nil {
		broadcaster = pubsub.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel)
		ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)
	}
	broadcast := func(topic string, payload any) {
		b, err := json.Marshal(pubsub.WSUpdate{Type: topic, Payload: payload})
		if err != nil {
			log.Warn("ws payload marshal failed", zap.Error(err))
			return
		}
		broadcasts.WithLabelValues(topic).Inc()
		if broadcaster == nil {
			ws.Dispatch(hub, b, log)
			return
		}
		pctx, pcancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer pcancel()
		if err := broadcaster.Publish(pctx, b); err != nil {
			log.Warn("ws broadcast publish failed", zap.Error(err))
		}
	}

	// Kafka (opcional): eventos de ciclo de vida para o journal
	ctrlOpts := []lifecycle.Option{
		lifecycle.WithLogger(log.Named("lifecycle")),
		lifecycle.WithOutcomeObserver(func(op, outcome string) {
			opsTotal.WithLabelValues(op, outcome).Inc()
		}),
		lifecycle.WithNotifier(lifecycle.NotifierFunc(func(o lifecycle.Outcome) {
			n := notification{Op: o.Op, BetID: o.BetID}
			if o.Err != nil {
				n.Error = o.Err.Error()
				if k := bet.KindOf(o.Err); k != nil {
					n.Kind = k.Error()
				}
			} else {
				n.Signature = o.Receipt.Signature.String()
			}
			broadcast(pubsub.TopicNotification, n)
		})),
	}
	if cfg.KafkaBrokers != "" {
		ensureTopics(ctx, cfg, log, cfg.TopicBetLifecycle)
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetLifecycle)
		defer writer.Close()
		ctrlOpts = append(ctrlOpts, lifecycle.WithPublisher(
			producer.NewKafkaPublisher(writer, cfg.TopicBetLifecycle, log.Named("producer")),
		))
		log.Info("kafka writer ready", zap.String("topic", cfg.TopicBetLifecycle))
	}
	ctrl := lifecycle.New(store, setup.Oracle, setup.ProgramID, ctrlOpts...)

	// Cada snapshot novo vai para o cache Redis e para o WS
	var stateCache *cache.RedisCache
	if rdb != nil {
		stateCache = cache.NewRedisCache(rdb, cfg.RedisStateKey, 10*time.Minute)
	}
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go func() {
		for st := range updates {
			if stateCache != nil {
				cctx, ccancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
				if err := stateCache.Set(cctx, st); err != nil {
					log.Warn("state cache write failed", zap.Error(err))
				}
				ccancel()
			}
			broadcast(pubsub.TopicState, st)
		}
	}()

	// Dados de mercado (apresentação): criptos via HTTP e a lista fixa de ações
	var sources marketdata.Merged
	if cfg.MarketDataURL != "" && len(cfg.MarketSymbols) > 0 {
		mc := marketdata.New(cfg.MarketDataURL, cfg.MarketSymbols, cfg.MarketHistoryDays)
		mc.Log = log.Named("marketdata")
		if rdb != nil {
			mc.Cache = cache.NewRedisCache(rdb, "betsync:markets", cfg.MarketCacheTTL)
		}
		sources = append(sources, mc)
	}
	if cfg.MarketStocks {
		sources = append(sources, marketdata.Stocks())
	}
	var markets httpapi.Markets
	if len(sources) > 0 {
		markets = sources
	}

	// Conecta: a partir daqui o store busca master e bets
	conn := setup.Connection
	store.SetConnection(&conn)
	store.SetSigner(key)

	// SIGHUP relê o keypair (troca de identidade descarta os fetches em andamento)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				k, err := ledger.LoadKeypair(cfg.KeypairPath)
				if err != nil {
					log.Error("keypair reload failed", zap.Error(err))
					continue
				}
				store.SetSigner(k)
				log.Info("keypair reloaded", zap.Bool("has_identity", k != nil))
			}
		}
	}()

	// metrics/health
	checks := []metrics.Check{{Name: "ledger", Fn: func(context.Context) error {
		st := store.Snapshot()
		if st.Master.Status == syncstore.StatusUnavailable {
			return errors.New(st.Master.Error)
		}
		return nil
	}}}
	if rdb != nil {
		checks = append(checks, metrics.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, checks...)

	// HTTP público
	api := &httpapi.API{
		Log:           log.Named("http"),
		Store:         store,
		Ctrl:          ctrl,
		Markets:       markets,
		WS:            http.HandlerFunc(hub.HandleWS),
		SubmitTimeout: cfg.SubmitTimeout,
	}
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("sync-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("sync-service stopped")
}

// ensureTopics cria os tópicos só em local/dev; em produção eles são provisionados fora do serviço
func ensureTopics(ctx context.Context, cfg config.Config, log *zap.Logger, topics ...string) {
	if cfg.Env != "local" && cfg.Env != "dev" {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kafka.EnsureTopics(tctx, cfg.KafkaBrokers, topics...); err != nil {
		log.Warn("failed to create kafka topics", zap.Strings("topics", topics), zap.Error(err))
		return
	}
	log.Info("kafka topics ready", zap.Strings("topics", topics))
}
