package lifecycle

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	kafkax "github.com/ariefcatur/go-courier-orders/internal/kafka"
)

// Listener runs one subscription per topic, each on its own goroutine. The
// first subscription to fail stops the others.
type Listener struct {
	subs []*kafkax.Subscriber
	log  zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewListener(subs []*kafkax.Subscriber, log zerolog.Logger) *Listener {
	return &Listener{subs: subs, log: log}
}

// Run blocks until ctx is cancelled or a subscription fails, then closes the
// consumers.
func (l *Listener) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range l.subs {
		g.Go(func() error { return s.Run(gctx) })
	}
	err := g.Wait()
	for _, s := range l.subs {
		if cerr := s.Consumer.Close(); cerr != nil {
			l.log.Warn().Err(cerr).Str("topic", s.Consumer.Topic()).Msg("close consumer")
		}
	}
	return err
}

// Start runs the listener in the background. onFail is called when it stops
// on its own because of an error.
func (l *Listener) Start(ctx context.Context, onFail func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		err := l.Run(runCtx)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		if err != nil {
			l.log.Error().Err(err).Msg("listener stopped")
			if onFail != nil {
				onFail(err)
			}
			return
		}
		l.log.Info().Msg("listener stopped")
	}()
}

// Stop cancels the subscriptions and waits for them, or for ctx. A failure
// already passed to onFail is not returned again.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the error the listener stopped with, if any.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
