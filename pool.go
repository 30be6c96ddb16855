package memcache

import (
	"context"
	"time"
)

// PoolConfig holds the per-server sizing contract from spec.md §4.B.
type PoolConfig struct {
	// Min is the floor size: createAllMinObjects creates connections up to
	// this count, and idle eviction never evicts below it.
	Min int32
	// Max is the ceiling on managed (non-disposable) connections.
	Max int32
	// KeepAlive is how long an idle connection may sit before eviction
	// becomes eligible. Zero means evict eagerly; negative disables
	// eviction entirely.
	KeepAlive time.Duration
	// Disposable allows borrow to fabricate untracked, single-use
	// connections once Max is reached instead of waiting.
	Disposable bool
	// BorrowValidate runs the validation probe on a candidate before
	// handing it to the caller.
	BorrowValidate bool
	// ReturnValidate runs the validation probe when a connection comes
	// back, destroying it on failure instead of returning it to idle.
	ReturnValidate bool
}

// Validator probes conn and reports whether it is still usable. Used for
// BorrowValidate/ReturnValidate; the health monitor's revival probe does not
// go through it (spec.md §4.E "Connection validation probe").
type Validator func(ctx context.Context, conn *Connection) bool

// Resource represents a connection resource from the pool.
type Resource interface {
	// Value returns the underlying connection.
	Value() *Connection

	// Release returns the connection to the pool for reuse.
	Release()

	// ReleaseUnused returns the connection to the pool without marking it as used.
	// Used for health checks that don't actually use the connection.
	ReleaseUnused()

	// Destroy closes the connection and removes it from the pool.
	Destroy()

	// CreationTime returns when the connection was created.
	CreationTime() time.Time

	// IdleDuration returns how long the connection has been idle.
	IdleDuration() time.Duration
}

// Pool manages a pool of connections.
type Pool interface {
	// Acquire gets a connection from the pool, creating one if necessary.
	// Blocks until a connection is available or context is canceled.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle acquires all idle connections from the pool.
	// Used for health checks and maintenance.
	AcquireAllIdle() []Resource

	// CreateAllMin eagerly creates connections until managed == min
	// (spec.md §4.B createAllMinObjects).
	CreateAllMin(ctx context.Context) error

	// Close closes the pool and all connections.
	Close()

	// Stats returns a snapshot of pool statistics.
	Stats() PoolStats
}
