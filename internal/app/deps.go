package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/ariefcatur/go-courier-orders/internal/config"
	kafkax "github.com/ariefcatur/go-courier-orders/internal/kafka"
	"github.com/ariefcatur/go-courier-orders/internal/lifecycle"
	"github.com/ariefcatur/go-courier-orders/internal/logger"
	"github.com/ariefcatur/go-courier-orders/internal/metrics"
	"github.com/ariefcatur/go-courier-orders/internal/orders"
	"github.com/ariefcatur/go-courier-orders/internal/redisx"
	"github.com/ariefcatur/go-courier-orders/internal/store"
	"github.com/ariefcatur/go-courier-orders/internal/store/hbase"
	"github.com/ariefcatur/go-courier-orders/internal/store/memstore"
	"github.com/ariefcatur/go-courier-orders/internal/store/pgcells"
	"github.com/ariefcatur/go-courier-orders/internal/tracing"
)

// CoreModule wires everything a transition needs: logger, metrics, tracing,
// store and bus dialers, status cache and the coordinator. It expects a
// *config.Config to be provided.
var CoreModule = fx.Options(
	logger.Module,
	fx.Provide(
		newRegistry,
		func(r *prometheus.Registry) prometheus.Registerer { return r },
		func(r *prometheus.Registry) prometheus.Gatherer { return r },
		metrics.New,
		NewStoreDialer,
		newSenderDialer,
		newCache,
		newCoordinator,
	),
	fx.Invoke(registerTracing),
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewStoreDialer picks the store driver named in cfg. The memory driver comes
// with the orders table already created.
func NewStoreDialer(cfg *config.Config, log zerolog.Logger) (store.Dialer, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return pgcells.Dialer{DSN: cfg.PostgresDSN}, nil
	case config.DriverMemory:
		m := memstore.New()
		if err := m.CreateTable(context.Background(), cfg.OrdersTable, orders.Families); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return hbase.Dialer{Quorum: cfg.HBaseQuorum, Log: log}, nil
	}
}

func newSenderDialer(cfg *config.Config) lifecycle.SenderDialer {
	return lifecycle.ProducerDialer(kafkax.ProducerDialer{Brokers: cfg.KafkaBrokers})
}

type cacheParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    zerolog.Logger
}

func newCache(p cacheParams) lifecycle.OrderCache {
	if p.Config.RedisAddr == "" {
		return lifecycle.NopCache{}
	}
	rdb := redisx.New(p.Config.RedisAddr)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := redisx.Ping(ctx, rdb); err != nil {
				p.Logger.Warn().Err(err).Str("addr", p.Config.RedisAddr).Msg("redis unreachable, status cache will miss")
			}
			return nil
		},
		OnStop: func(context.Context) error { return rdb.Close() },
	})
	return redisx.NewStatusCache(rdb, p.Config.StatusCacheTTL)
}

type coordinatorParams struct {
	fx.In

	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Stores  store.Dialer
	Senders lifecycle.SenderDialer
	Cache   lifecycle.OrderCache
}

func newCoordinator(p coordinatorParams) *lifecycle.Coordinator {
	return lifecycle.NewCoordinator(p.Stores, p.Senders, lifecycle.Options{
		Table:   p.Config.OrdersTable,
		Topics:  topics(p.Config),
		Guard:   p.Config.GuardTransitions,
		Cache:   p.Cache,
		Metrics: p.Metrics,
		Log:     p.Logger.With().Str("component", "coordinator").Logger(),
	})
}

func topics(cfg *config.Config) orders.Topics {
	return orders.Topics{OutForDelivery: cfg.TopicOutForDelivery, Delivered: cfg.TopicDelivered}
}

func registerTracing(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) error {
	tp, err := tracing.InitTracerProvider(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	if cfg.JaegerEndpoint != "" {
		log.Info().Str("endpoint", cfg.JaegerEndpoint).Msg("tracing initialized")
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return tracing.Shutdown(ctx, tp) }})
	return nil
}
