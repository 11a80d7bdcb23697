package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/resilience"
)

type guardedSink struct {
	sink    Sink
	breaker *resilience.CircuitBreaker
}

// Fanout publishes each event to all sinks concurrently. Every sink sits
// behind its own circuit breaker and timeout so one unreachable backend
// neither blocks the others nor keeps being hammered.
type Fanout struct {
	sinks   []guardedSink
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

func WithMetrics(m *metrics.Metrics) FanoutOption {
	return func(f *Fanout) { f.metrics = m }
}

// WithBreakerConfig overrides the per-sink circuit breaker settings.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) FanoutOption {
	return func(f *Fanout) {
		for i := range f.sinks {
			f.sinks[i].breaker = f.newBreaker(f.sinks[i].sink.Name(), cfg)
		}
	}
}

func NewFanout(timeout time.Duration, sinks []Sink, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		timeout: timeout,
		logger:  logger.WithComponent("notify"),
	}
	for _, s := range sinks {
		f.sinks = append(f.sinks, guardedSink{sink: s})
	}
	for _, opt := range opts {
		opt(f)
	}
	for i := range f.sinks {
		if f.sinks[i].breaker == nil {
			f.sinks[i].breaker = f.newBreaker(f.sinks[i].sink.Name(), resilience.CircuitBreakerConfig{})
		}
	}
	return f
}

func (f *Fanout) newBreaker(name string, cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	cfg.OnStateChange = func(name string, _, to resilience.State) {
		f.metrics.BreakerState(name, int(to))
	}
	return resilience.NewCircuitBreaker("notify-"+name, cfg)
}

func (f *Fanout) Len() int { return len(f.sinks) }

// Publish sends ev to every sink and returns the combined failures.
func (f *Fanout) Publish(ctx context.Context, ev CommitEvent) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs *multierror.Error
	)
	for _, gs := range f.sinks {
		g.Go(func() error {
			name := gs.sink.Name()
			err := gs.breaker.Execute(func() error {
				return resilience.WithTimeout(ctx, f.timeout, "publish to "+name, func(ctx context.Context) error {
					return gs.sink.Publish(ctx, ev)
				})
			})
			if err != nil {
				f.metrics.NotifyPublished(name, "error")
				f.logger.Warn("commit notification failed",
					"sink", name, "generation", ev.Generation, "dir", ev.Dir, "error", err)
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			f.metrics.NotifyPublished(name, "ok")
			return nil
		})
	}
	g.Wait()
	return errs.ErrorOrNil()
}
