package memcache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memcachex/memcache/internal/coarsetime"
)

// errPoolClosed is returned by Acquire once the pool has been destroyed.
var errPoolClosed = errors.New("memcache: pool closed")

// NewChannelPool builds the pool backend used by the dispatcher: the only
// one of the two backends able to express disposable overflow and
// borrow/return validation (spec.md §4.B). validate may be nil if neither
// cfg.BorrowValidate nor cfg.ReturnValidate is set.
func NewChannelPool(constructor func(ctx context.Context) (*Connection, error), cfg PoolConfig, validate Validator) (Pool, error) {
	p := &channelPool{
		constructor: constructor,
		validate:    validate,
		cfg:         cfg,
		waiters:     list.New(),
	}
	if cfg.KeepAlive >= 0 {
		interval := cfg.KeepAlive / 4
		if interval < 100*time.Millisecond {
			interval = 100 * time.Millisecond
		}
		p.evictTicker = time.NewTicker(interval)
		p.evictDone = make(chan struct{})
		go p.evictLoop()
	}
	return p, nil
}

// channelResource implements Resource for channelPool.
type channelResource struct {
	conn         *Connection
	pool         *channelPool
	disposable   bool
	creationTime time.Time
	lastUsedTime time.Time
	resolved     atomic.Bool
}

func (r *channelResource) Value() *Connection { return r.conn }

func (r *channelResource) Release() {
	if !r.resolved.CompareAndSwap(false, true) {
		return
	}
	r.lastUsedTime = coarsetime.Now()
	r.pool.release(r, true)
}

func (r *channelResource) ReleaseUnused() {
	if !r.resolved.CompareAndSwap(false, true) {
		return
	}
	r.pool.release(r, false)
}

func (r *channelResource) Destroy() {
	if !r.resolved.CompareAndSwap(false, true) {
		return
	}
	r.pool.destroyBorrowed(r)
}

func (r *channelResource) CreationTime() time.Time { return r.creationTime }

func (r *channelResource) IdleDuration() time.Duration { return time.Since(r.lastUsedTime) }

type acquireResult struct {
	res *channelResource
	err error
}

// channelPool implements the full sizing contract of spec.md §4.B: min/max,
// disposable overflow, borrow/return validation, keepAlive idle eviction,
// peak tracking, and FIFO waiter fairness. Generalized from the teacher's
// simpler fixed-size pool_custom.go.
type channelPool struct {
	constructor func(ctx context.Context) (*Connection, error)
	validate    Validator
	cfg         PoolConfig

	mu        sync.Mutex
	idle      []*channelResource
	managed   int32
	active    int32
	destroyed bool
	waiters   *list.List // of chan acquireResult

	evictTicker *time.Ticker
	evictDone   chan struct{}

	stats poolStatsCollector
}

// acquireSource classifies where acquireOne's candidate came from, so the
// caller applies exactly the right gauge adjustment.
type acquireSource int

const (
	sourceIdle acquireSource = iota
	sourceCreated
	sourceDisposable
	sourceHandoff
)

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	for {
		res, source, err := p.acquireOne(ctx)
		if err != nil {
			p.stats.recordAcquireError()
			return nil, err
		}
		if source == sourceIdle {
			p.stats.recordAcquireFromIdle()
		}

		if !p.cfg.BorrowValidate || p.validate == nil {
			return res, nil
		}

		if p.validate(ctx, res.conn) {
			return res, nil
		}

		p.discardInvalid(res)

		if err := ctx.Err(); err != nil {
			p.stats.recordAcquireError()
			return nil, &NoValidObjectError{}
		}
	}
}

// discardInvalid destroys a candidate that failed borrow validation,
// uncounting it if it was managed, and never counting it if disposable.
func (p *channelPool) discardInvalid(res *channelResource) {
	res.conn.Close()
	if res.disposable {
		return
	}
	p.mu.Lock()
	p.managed--
	p.mu.Unlock()
	p.stats.recordActiveRemove()
	p.stats.recordDestroy()
}

// acquireOne produces exactly one candidate connection, without regard to
// validation: from idle, freshly created, disposable overflow, or by
// waiting for a handoff.
func (p *channelPool) acquireOne(ctx context.Context) (res *channelResource, source acquireSource, err error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil, 0, errPoolClosed
	}

	if n := len(p.idle); n > 0 {
		res = p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.active++
		p.mu.Unlock()
		return res, sourceIdle, nil
	}

	if p.managed < p.cfg.Max {
		p.managed++
		p.active++
		p.mu.Unlock()

		conn, err := p.constructor(ctx)
		if err != nil {
			p.mu.Lock()
			p.managed--
			p.active--
			p.mu.Unlock()
			return nil, 0, err
		}
		p.stats.recordCreate()
		p.stats.recordActivate()
		now := coarsetime.Now()
		return &channelResource{conn: conn, pool: p, creationTime: now, lastUsedTime: now}, sourceCreated, nil
	}

	if p.cfg.Disposable {
		p.mu.Unlock()
		conn, err := p.constructor(ctx)
		if err != nil {
			return nil, 0, err
		}
		now := coarsetime.Now()
		return &channelResource{conn: conn, pool: p, disposable: true, creationTime: now, lastUsedTime: now}, sourceDisposable, nil
	}

	ch := make(chan acquireResult, 1)
	elem := p.waiters.PushBack(ch)
	p.mu.Unlock()

	waitStart := coarsetime.Now()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, 0, r.err
		}
		p.stats.recordAcquireWait(time.Since(waitStart))
		return r.res, sourceHandoff, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.waiters.Remove(elem)
		p.mu.Unlock()
		return nil, 0, &PoolExhaustedError{}
	}
}

// release handles a returned (previously borrowed, non-disposable-overflow
// path already excluded) connection: Resource.Release/ReleaseUnused.
func (p *channelPool) release(res *channelResource, validate bool) {
	if res.disposable {
		res.conn.Close()
		return
	}

	if validate && p.cfg.ReturnValidate && p.validate != nil {
		if !p.validate(context.Background(), res.conn) {
			res.conn.Close()
			p.mu.Lock()
			p.managed--
			p.mu.Unlock()
			p.stats.recordActiveRemove()
			p.stats.recordDestroy()
			return
		}
	}

	p.mu.Lock()
	if p.destroyed {
		p.managed--
		p.mu.Unlock()
		res.conn.Close()
		p.stats.recordActiveRemove()
		p.stats.recordDestroy()
		return
	}

	if elem := p.waiters.Front(); elem != nil {
		p.waiters.Remove(elem)
		ch := elem.Value.(chan acquireResult)
		p.mu.Unlock()
		ch <- acquireResult{res: res}
		return
	}

	p.idle = append(p.idle, res)
	p.active--
	p.mu.Unlock()
	p.stats.recordRelease()
}

// destroyBorrowed handles Resource.Destroy on a connection that was
// borrowed and never returned (spec.md §4.B remove).
func (p *channelPool) destroyBorrowed(res *channelResource) {
	res.conn.Close()
	if res.disposable {
		return
	}
	p.mu.Lock()
	p.managed--
	p.active--
	p.mu.Unlock()
	p.stats.recordActiveRemove()
	p.stats.recordDestroy()
}

func (p *channelPool) AcquireAllIdle() []Resource {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.active += int32(len(idle))
	p.mu.Unlock()

	resources := make([]Resource, len(idle))
	for i, res := range idle {
		resources[i] = res
	}
	for range idle {
		p.stats.recordIdleRemove()
		p.stats.recordActivate()
	}
	return resources
}

func (p *channelPool) CreateAllMin(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.destroyed || p.managed >= p.cfg.Min {
			p.mu.Unlock()
			return nil
		}
		p.managed++
		p.mu.Unlock()

		conn, err := p.constructor(ctx)
		if err != nil {
			p.mu.Lock()
			p.managed--
			p.mu.Unlock()
			return err
		}
		p.stats.recordCreate()

		now := coarsetime.Now()
		res := &channelResource{conn: conn, pool: p, creationTime: now, lastUsedTime: now}

		p.mu.Lock()
		if p.destroyed {
			p.mu.Unlock()
			conn.Close()
			p.stats.recordDestroy()
			return nil
		}
		p.idle = append(p.idle, res)
		p.mu.Unlock()
		p.stats.recordIdleAdd()
	}
}

func (p *channelPool) evictLoop() {
	for {
		select {
		case <-p.evictTicker.C:
			p.sweepIdle()
		case <-p.evictDone:
			return
		}
	}
}

// sweepIdle evicts idle connections overdue by cfg.KeepAlive, never taking
// managed below cfg.Min (spec.md §4.B "Eviction").
func (p *channelPool) sweepIdle() {
	p.mu.Lock()
	if p.destroyed || len(p.idle) == 0 {
		p.mu.Unlock()
		return
	}
	now := coarsetime.Now()
	var evicted []*channelResource
	kept := p.idle[:0]
	for _, res := range p.idle {
		if p.managed-int32(len(evicted)) > p.cfg.Min && now.Sub(res.lastUsedTime) >= p.cfg.KeepAlive {
			evicted = append(evicted, res)
			continue
		}
		kept = append(kept, res)
	}
	p.idle = kept
	p.managed -= int32(len(evicted))
	p.mu.Unlock()

	if len(evicted) == 0 {
		return
	}
	for _, res := range evicted {
		res.conn.Close()
		p.stats.recordIdleRemove()
		p.stats.recordDestroy()
	}
}

func (p *channelPool) Close() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	idle := p.idle
	p.idle = nil
	var waiters []chan acquireResult
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		waiters = append(waiters, e.Value.(chan acquireResult))
	}
	p.waiters.Init()
	p.mu.Unlock()

	if p.evictTicker != nil {
		p.evictTicker.Stop()
		close(p.evictDone)
	}
	for _, res := range idle {
		res.conn.Close()
	}
	for _, ch := range waiters {
		ch <- acquireResult{err: errPoolClosed}
	}
}

func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
