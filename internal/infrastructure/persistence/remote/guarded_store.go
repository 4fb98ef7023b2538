package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings configures GuardedStore.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// GuardedStore wraps a RemoteStore with a circuit breaker. While the breaker
// is open the store reports itself unavailable, so the sink falls back to the
// local store without paying a network timeout on every call.
type GuardedStore struct {
	inner  tracking.RemoteStore
	cb     *gobreaker.CircuitBreaker[any]
	name   string
	logger *logging.ChanneledLogger
}

// NewGuardedStore decorates inner.
func NewGuardedStore(inner tracking.RemoteStore, settings BreakerSettings, logger *logging.ChanneledLogger) *GuardedStore {
	if settings.Name == "" {
		settings.Name = "remote-store"
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	metrics.BreakerState.WithLabelValues(settings.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		// A missing document is an answer, not a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, tracking.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Remote().Warn("Remote circuit breaker state transition", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &GuardedStore{inner: inner, cb: cb, name: settings.Name, logger: logger}
}

// State reports the breaker state.
func (g *GuardedStore) State() gobreaker.State {
	return g.cb.State()
}

// Available is false while the breaker is open; otherwise the inner probe decides.
func (g *GuardedStore) Available(ctx context.Context) bool {
	if g.cb.State() == gobreaker.StateOpen {
		return false
	}
	return g.inner.Available(ctx)
}

func (g *GuardedStore) execute(fn func() (any, error)) (any, error) {
	result, err := g.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", err.Error(), tracking.ErrRemoteUnavailable)
	}
	return result, err
}

func (g *GuardedStore) Put(ctx context.Context, c tracking.Collection, doc tracking.Document) error {
	_, err := g.execute(func() (any, error) {
		return nil, g.inner.Put(ctx, c, doc)
	})
	return err
}

func (g *GuardedStore) Get(ctx context.Context, c tracking.Collection, id string) (tracking.Document, error) {
	result, err := g.execute(func() (any, error) {
		return g.inner.Get(ctx, c, id)
	})
	if err != nil {
		return tracking.Document{}, err
	}
	doc, _ := result.(tracking.Document)
	return doc, nil
}

func (g *GuardedStore) Query(ctx context.Context, c tracking.Collection, q tracking.Query) ([]tracking.Document, error) {
	result, err := g.execute(func() (any, error) {
		return g.inner.Query(ctx, c, q)
	})
	if err != nil {
		return nil, err
	}
	docs, _ := result.([]tracking.Document)
	return docs, nil
}

func (g *GuardedStore) Delete(ctx context.Context, c tracking.Collection, id string) error {
	_, err := g.execute(func() (any, error) {
		return nil, g.inner.Delete(ctx, c, id)
	})
	return err
}

func (g *GuardedStore) Subscribe(ctx context.Context, c tracking.Collection, q tracking.Query, onDocs func([]tracking.Document), onErr func(error)) (func(), error) {
	result, err := g.execute(func() (any, error) {
		return g.inner.Subscribe(ctx, c, q, onDocs, onErr)
	})
	if err != nil {
		return nil, err
	}
	cancel, _ := result.(func())
	return cancel, nil
}

func (g *GuardedStore) Close() error {
	return g.inner.Close()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
