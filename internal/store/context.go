package store

import (
	"context"
	"errors"
)

// ErrNoStore is returned by FromContext when the context carries no store.
// It signals a wiring mistake in the integrating code.
var ErrNoStore = errors.New("store: no CartStore in context; wrap it with store.NewContext")

type contextKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *CartStore) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the store carried by ctx.
func FromContext(ctx context.Context) (*CartStore, error) {
	s, ok := ctx.Value(contextKey{}).(*CartStore)
	if !ok || s == nil {
		return nil, ErrNoStore
	}
	return s, nil
}
