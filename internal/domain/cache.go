package domain

import (
	"context"
	"io"
	"time"
)

// LockManager provides distributed locking. Odds and volume mutation is
// serialized per market through it, and the treasury carries its own lock so
// concurrent settlements and cash-outs cannot jointly overdraw it.
type LockManager interface {
	// Acquire takes the lock or returns ErrLockHeld immediately.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)

	// AcquireWait retries Acquire until it succeeds or maxWait elapses, in
	// which case it returns ErrLockHeld.
	AcquireWait(ctx context.Context, key string, ttl, maxWait time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of engine events (odds moves, bets,
// settlements) to the WebSocket hub and any other listener.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads data to object storage. Settlement reports are archived
// through it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
