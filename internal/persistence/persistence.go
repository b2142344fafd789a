// Package persistence defines the key-value collaborator the cart store
// persists snapshots into.
package persistence

import (
	"context"
	"errors"

	apperrors "github.com/utafrali/gomarketplace/pkg/errors"
)

// KV is an asynchronous key-value store. Implementations must be safe for
// concurrent use.
type KV interface {
	// Get returns the value stored under key. A missing key yields an error
	// matching apperrors.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// ListKeys returns every key starting with prefix, sorted ascending.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// KeyNotFound builds the error returned by Get for a missing key.
func KeyNotFound(key string) error {
	return apperrors.NotFound("key", key)
}

// IsNotFound reports whether err signals a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}
