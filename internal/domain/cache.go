package domain

import (
	"context"
	"time"
)

// BondCache caches bond records for read paths.
type BondCache interface {
	Set(ctx context.Context, bond Bond) error
	Get(ctx context.Context, id int64) (Bond, error)
	Invalidate(ctx context.Context, id int64) error
}

// RateLimiter throttles per-wallet operation rates.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking for cross-process serialization
// of bond operations.
type LockManager interface {
	// Acquire attempts to obtain the lock for key with the given TTL. On
	// success it returns an unlock function. Returns ErrLockHeld if the lock
	// is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// StreamMessage is one entry read from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides publish/subscribe messaging for lifecycle events plus a
// durable, ordered stream for event history.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
