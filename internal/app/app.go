package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/ariefcatur/go-courier-orders/internal/config"
	"github.com/ariefcatur/go-courier-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-courier-orders/internal/kafka"
	"github.com/ariefcatur/go-courier-orders/internal/lifecycle"
	"github.com/ariefcatur/go-courier-orders/internal/metrics"
)

// APIModule serves the HTTP routes.
var APIModule = fx.Options(
	fx.Provide(newRouter, newHTTPServer),
	fx.Invoke(registerHTTP),
)

// ListenerModule consumes both lifecycle topics in the background. With
// exitOnFailure a fatal subscription error shuts the whole app down;
// otherwise only the listener stops and the HTTP side keeps serving.
func ListenerModule(exitOnFailure bool) fx.Option {
	return fx.Options(
		fx.Provide(newListener),
		fx.Invoke(func(p listenerHookParams) { registerListener(p, exitOnFailure) }),
	)
}

func newRouter(log zerolog.Logger, gatherer prometheus.Gatherer, coord *lifecycle.Coordinator) *chi.Mux {
	r := httpx.NewRouter(log, gatherer)
	(&httpx.OrdersHandler{Orders: coord}).Register(r)
	return r
}

func newHTTPServer(cfg *config.Config, r *chi.Mux) *http.Server {
	return &http.Server{Addr: cfg.HTTPAddr, Handler: r}
}

type httpHookParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     zerolog.Logger
	Server     *http.Server
	Config     *config.Config
}

func registerHTTP(p httpHookParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Logger.Info().Str("addr", p.Server.Addr).Msg("HTTP listening")
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error().Err(err).Msg("http server terminated")
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			defer cancel()
			if err := p.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			p.Logger.Info().Msg("http server stopped")
			return nil
		},
	})
}

type listenerParams struct {
	fx.In

	Config      *config.Config
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	Coordinator *lifecycle.Coordinator
}

// newListener builds one subscriber per topic. Without brokers it returns a
// listener with no subscriptions.
func newListener(p listenerParams) (*lifecycle.Listener, error) {
	log := p.Logger.With().Str("component", "listener").Logger()
	handlers := p.Coordinator.Handlers()
	var subs []*kafkax.Subscriber
	for _, topic := range []string{p.Config.TopicOutForDelivery, p.Config.TopicDelivered} {
		cons, err := kafkax.NewConsumer(kafkax.ConsumerConfig{
			Brokers:     p.Config.KafkaBrokers,
			Group:       p.Config.KafkaGroup,
			Topic:       topic,
			PollTimeout: p.Config.PollTimeout,
			BatchLinger: p.Config.BatchLinger,
			MaxBatch:    p.Config.MaxBatch,
		})
		if errors.Is(err, kafkax.ErrNotConfigured) {
			log.Warn().Msg("no kafka brokers configured, listener disabled")
			return lifecycle.NewListener(nil, log), nil
		}
		if err != nil {
			return nil, err
		}
		subs = append(subs, &kafkax.Subscriber{
			Consumer: cons,
			Handler:  handlers[topic],
			Log:      log,
			Metrics:  p.Metrics,
		})
	}
	return lifecycle.NewListener(subs, log), nil
}

type listenerHookParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     zerolog.Logger
	Listener   *lifecycle.Listener
}

func registerListener(p listenerHookParams, exitOnFailure bool) {
	var cancel context.CancelFunc
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// the start context expires once startup is done
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			p.Listener.Start(ctx, func(err error) {
				if exitOnFailure {
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			defer cancel()
			return p.Listener.Stop(ctx)
		},
	})
}
