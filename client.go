package memcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/memcachex/memcache/protocol"
)

// Client is a multi-server, connection-pooled memcached binary-protocol
// client: the ring picks the owning server for a key, the keyed pool
// borrows a connection to it, and the dispatcher ties the two together
// with the active/quarantined state machine and (optionally) the health
// monitor. Generalized from the teacher's single-address pooledClient.
type Client struct {
	config  Config
	codec   ValueCodec
	ring    *Ring
	pool    *keyedPool
	disp    *dispatcher
	monitor *healthMonitor

	stats *clientStatsCollector

	mu       sync.Mutex
	closed   bool
	listener *CoordinationListener
}

// NewClient builds a Client over the given static server list. Use
// NewClientWithListener instead when servers are supplied by a
// coordination service.
func NewClient(servers Servers, config Config) (*Client, error) {
	cfg := config.withDefaults()

	ring := NewRing(0)
	pool := newKeyedPool(cfg)
	disp := newDispatcher(ring, pool)

	c := &Client{
		config: cfg,
		codec:  RawCodec{},
		ring:   ring,
		pool:   pool,
		disp:   disp,
		stats:  newClientStatsCollector(),
	}

	ctx := context.Background()
	for _, addr := range servers.List() {
		if err := c.addServer(ctx, addr); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.monitor = newHealthMonitor(ring, pool, disp, cfg)
	if c.monitor != nil {
		c.monitor.start()
	}

	return c, nil
}

// NewClientWithListener builds a Client with no initial servers and
// attaches a CoordinationListener that will add/remove servers as
// OnInit/OnCommit/OnDestroy fire (spec.md §6). Register the returned
// listener with the coordination-service client.
func NewClientWithListener(config Config) (*Client, *CoordinationListener, error) {
	c, err := NewClient(NewStaticServers(), config)
	if err != nil {
		return nil, nil, err
	}
	listener := NewCoordinationListener(c, config.PreferRemoteConfig)
	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()
	return c, listener, nil
}

// WithCodec returns a shallow copy of the client that carries codec. The
// commands (Get, Set and the rest) take and return raw []byte values and
// flags and do not call the codec.
func (c *Client) WithCodec(codec ValueCodec) *Client {
	clone := *c
	clone.codec = codec
	return &clone
}

func (c *Client) addServer(ctx context.Context, addr string) error {
	if err := c.pool.addServer(ctx, addr); err != nil {
		return err
	}
	c.ring.Add(addr)
	return nil
}

func (c *Client) removeServer(addr string) {
	c.ring.Remove(addr)
	c.pool.removeServer(addr)
}

// Stats returns the client-level operation counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// PoolStats returns the per-server pool statistics for every known server.
func (c *Client) PoolStats() map[string]PoolStats {
	out := make(map[string]PoolStats)
	for _, addr := range c.pool.addrs() {
		out[addr] = c.pool.stats(addr)
	}
	return out
}

// HealthStats returns the health monitor's running totals, or the zero
// value if failover is disabled.
func (c *Client) HealthStats() HealthMonitorStats {
	if c.monitor == nil {
		return HealthMonitorStats{}
	}
	return c.monitor.statsSnapshot()
}

// Close stops the health monitor and destroys every server's pool.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.monitor != nil {
		c.monitor.stop()
	}
	c.pool.destroy()
	return nil
}

// execSingle dispatches reqs (all for the same key) and returns the final
// frame. Per spec.md §7's propagation policy, a recoverable dispatch failure
// (Timeout, PoolExhausted, Interrupted, Transport, NoValidObject, Framing,
// ProtocolMismatch) is logged and reported to the caller as (nil, nil): the
// façade methods in commands.go treat a nil response as their documented
// "nothing happened" value. Only errClientClosed — a precondition violation,
// not an operation outcome — is returned as an error, since no façade method
// has a nothing-happened value to repurpose for "this client is closed".
func (c *Client) execSingle(ctx context.Context, key []byte, reqs []*protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errClientClosed
	}

	resps, err := c.disp.Dispatch(ctx, key, reqs)
	if err != nil {
		c.stats.recordError()
		c.config.Logger.Printf("memcache: operation on key %q failed: %v", key, err)
		return nil, nil
	}
	if len(resps) == 0 {
		return nil, nil
	}
	return resps[len(resps)-1], nil
}

// execSingleAll mirrors execSingle but returns every response frame (Stat's
// multi-frame collation needs all of them, not just the last), swallowing
// and logging recoverable dispatch failures the same way.
func (c *Client) execSingleAll(ctx context.Context, key []byte, reqs []*protocol.Request) ([]*protocol.Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errClientClosed
	}

	resps, err := c.disp.Dispatch(ctx, key, reqs)
	if err != nil {
		c.stats.recordError()
		c.config.Logger.Printf("memcache: operation on key %q failed: %v", key, err)
		return nil, nil
	}
	return resps, nil
}

var errClientClosed = fmt.Errorf("memcache: client closed")
