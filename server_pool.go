package memcache

import (
	"context"

	"github.com/memcachex/memcache/protocol"
)

// NewServerPool builds the pool + circuit breaker pair for one server
// address. Kept as the per-server unit the keyedPool and dispatcher operate
// on (spec.md §4.E's breaker sits here, between the dispatcher and the
// pool), generalized from the teacher's single-address client.
func NewServerPool(addr string, config Config) (*ServerPool, error) {
	dial := config.dialer()
	constructor := func(ctx context.Context) (*Connection, error) {
		netConn, err := dial(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return NewConnection(netConn), nil
	}

	pool, err := config.newPool(constructor)
	if err != nil {
		return nil, err
	}

	return &ServerPool{
		addr:           addr,
		pool:           pool,
		circuitBreaker: config.newCircuitBreaker(addr),
	}, nil
}

// ServerPool wraps a pool and a circuit breaker for one server address.
type ServerPool struct {
	addr           string
	pool           Pool
	circuitBreaker CircuitBreaker
}

func (sp *ServerPool) Address() string {
	return sp.addr
}

// ServerPoolStats contains stats for a single server pool
type ServerPoolStats struct {
	Addr                string
	PoolStats           PoolStats
	CircuitBreakerState CircuitBreakerState
}

func (sp *ServerPool) Stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:      sp.addr,
		PoolStats: sp.pool.Stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
	}
	return stats
}

// Execute borrows a connection, writes reqs as one batch, awaits every
// response, and returns/removes the connection depending on outcome
// (spec.md §4.E single-key and multi-key paths both funnel through this).
// The whole attempt is wrapped by the server's circuit breaker when
// configured, giving fast local failure between health-monitor ticks.
func (sp *ServerPool) Execute(ctx context.Context, reqs []*protocol.Request) ([]*protocol.Response, error) {
	if sp.circuitBreaker == nil {
		return sp.execDirect(ctx, reqs)
	}
	return sp.circuitBreaker.Execute(func() ([]*protocol.Response, error) {
		return sp.execDirect(ctx, reqs)
	})
}

// ExecuteStat runs a single Stat-family request and returns every frame
// accumulated before the terminating (empty-key) frame, which carries no
// stat entry of its own and is dropped (spec.md §4.C "Multi-response
// collation"). Execute cannot serve this: it keeps only the final frame of
// each request, which for Stat is the empty terminator.
func (sp *ServerPool) ExecuteStat(ctx context.Context, req *protocol.Request) ([]*protocol.Response, error) {
	if sp.circuitBreaker == nil {
		return sp.execStatDirect(ctx, req)
	}
	return sp.circuitBreaker.Execute(func() ([]*protocol.Response, error) {
		return sp.execStatDirect(ctx, req)
	})
}

func (sp *ServerPool) execStatDirect(ctx context.Context, req *protocol.Request) ([]*protocol.Response, error) {
	resource, err := sp.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	conn := resource.Value()

	r := newInflightRequest(req)
	if err := conn.Send([]*inflightRequest{r}); err != nil {
		resource.Destroy()
		return nil, err
	}

	_, frames, err := r.wait(ctx)
	if err != nil {
		resource.Destroy()
		return nil, err
	}
	resource.Release()

	if n := len(frames); n > 0 && len(frames[n-1].Key) == 0 {
		frames = frames[:n-1]
	}
	return frames, nil
}

func (sp *ServerPool) execDirect(ctx context.Context, reqs []*protocol.Request) ([]*protocol.Response, error) {
	resource, err := sp.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	conn := resource.Value()

	inflight := make([]*inflightRequest, len(reqs))
	for i, req := range reqs {
		inflight[i] = newInflightRequest(req)
	}

	if err := conn.Send(inflight); err != nil {
		resource.Destroy()
		return nil, err
	}

	results := make([]*protocol.Response, len(inflight))
	var firstErr error
	for i, r := range inflight {
		resp, _, err := r.wait(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results[i] = resp
	}

	if firstErr != nil {
		resource.Destroy()
		return results, firstErr
	}

	resource.Release()
	return results, nil
}
