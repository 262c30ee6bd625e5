// Package cache provides the key/value stores placed in front of engine
// reads. The cache is an optimisation only; callers must tolerate every
// error by recomputing from persisted state.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a key/value store with per-key TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key starting with prefix.
	DeletePattern(ctx context.Context, prefix string) error
}
