// Package breaker wraps a persistence.KV with a circuit breaker so a dead
// backend fails fast instead of stalling every cart mutation.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/gomarketplace/internal/persistence"
	apperrors "github.com/utafrali/gomarketplace/pkg/errors"
)

// Config holds circuit breaker settings.
type Config struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of calls allowed through while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once this share of calls fails.
	FailureRatio float64

	// MinRequests is the minimum number of calls before the ratio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns sensible defaults for a storage breaker.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// StateObserver receives breaker state transitions.
type StateObserver interface {
	SetBreakerState(name string, state gobreaker.State)
}

// KV is a persistence.KV guarded by a circuit breaker.
type KV struct {
	next    persistence.KV
	breaker *gobreaker.CircuitBreaker[any]
	name    string
}

// Wrap guards next with a breaker built from cfg. observer may be nil.
func Wrap(next persistence.KV, cfg Config, logger *slog.Logger, observer StateObserver) *KV {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || persistence.IsNotFound(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("storage circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if observer != nil {
				observer.SetBreakerState(name, to)
			}
		},
	}

	if observer != nil {
		observer.SetBreakerState(cfg.Name, gobreaker.StateClosed)
	}

	return &KV{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		name:    cfg.Name,
	}
}

// State returns the current breaker state.
func (b *KV) State() gobreaker.State {
	return b.breaker.State()
}

// Get reads through the breaker.
func (b *KV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.execute(func() (any, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Set writes through the breaker.
func (b *KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Set(ctx, key, value)
	})
	return err
}

// Remove deletes through the breaker.
func (b *KV) Remove(ctx context.Context, key string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Remove(ctx, key)
	})
	return err
}

// ListKeys lists through the breaker.
func (b *KV) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	v, err := b.execute(func() (any, error) {
		return b.next.ListKeys(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Ping bypasses the breaker so readiness reflects the real backend.
func (b *KV) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func (b *KV) execute(fn func() (any, error)) (any, error) {
	v, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.ServiceUnavailable("storage circuit "+b.name+" is open", err)
	}
	return v, err
}
