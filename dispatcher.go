package memcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/memcachex/memcache/protocol"
	"golang.org/x/sync/errgroup"
)

// writeFailureQuarantineThreshold is how many consecutive write failures
// (spec.md §4.E "repeated write failure") a server tolerates before the
// dispatcher quarantines it outright, rather than waiting for a connection
// churning through NoValidObject.
const writeFailureQuarantineThreshold = 3

// dispatcher routes commands to the right server (spec.md §4.E) and owns the
// per-server active/quarantined state machine. It runs no probe itself: the
// pool's validation probe is config.go's probeValidator, and the health
// monitor sends its own Noop probe (health_monitor.go).
type dispatcher struct {
	ring *Ring
	pool *keyedPool

	mu            sync.RWMutex
	quarantined   map[string]bool
	writeFailures map[string]int
}

func newDispatcher(ring *Ring, pool *keyedPool) *dispatcher {
	return &dispatcher{
		ring:          ring,
		pool:          pool,
		quarantined:   make(map[string]bool),
		writeFailures: make(map[string]int),
	}
}

// isActive reports whether addr is currently eligible for routing.
func (d *dispatcher) isActive(addr string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.quarantined[addr]
}

// quarantine marks addr as quarantined: the first NoValidObject from its
// pool, or repeated write failure, moves it here (spec.md §4.E "State
// machine for a server").
func (d *dispatcher) quarantine(addr string) {
	d.mu.Lock()
	d.quarantined[addr] = true
	d.mu.Unlock()
}

// revive clears addr's quarantine flag. Called by the health monitor after
// a successful probe and successful re-add to the ring+pool.
func (d *dispatcher) revive(addr string) {
	d.mu.Lock()
	delete(d.quarantined, addr)
	delete(d.writeFailures, addr)
	d.mu.Unlock()
}

// recordWriteOutcome tracks addr's consecutive write failures, quarantining
// it once writeFailureQuarantineThreshold is reached in a row (spec.md
// §4.E's second quarantine trigger, alongside NoValidObject). Any success
// resets the count: an isolated blip shouldn't condemn a server.
func (d *dispatcher) recordWriteOutcome(addr string, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !failed {
		delete(d.writeFailures, addr)
		return
	}
	d.writeFailures[addr]++
	if d.writeFailures[addr] >= writeFailureQuarantineThreshold {
		d.quarantined[addr] = true
		delete(d.writeFailures, addr)
	}
}

// quarantinedServers returns a snapshot of currently quarantined addresses.
func (d *dispatcher) quarantinedServers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.quarantined))
	for addr := range d.quarantined {
		out = append(out, addr)
	}
	return out
}

// route picks the owning server for key, skipping quarantined owners: a
// quarantined server still holds its ring tokens (the health monitor, not
// routing, decides removal) but must not receive new traffic.
func (d *dispatcher) route(key []byte) (string, bool) {
	addr := d.ring.Get(key)
	if addr == "" {
		return "", false
	}
	if !d.isActive(addr) {
		return "", false
	}
	return addr, true
}

// Dispatch executes reqs (all addressed to the same key) against key's
// owning server: borrow, enqueue+write and await, all performed inside
// ServerPool.Execute. Only dialing a new connection has its own deadline
// (DialTimeout); the borrow wait, the write and the response wait are
// bounded by ctx alone. On PoolExhausted/NoValidObject it fails fast; a
// NoValidObject additionally quarantines the server, and a run of
// writeFailureQuarantineThreshold consecutive write (Transport) failures
// quarantines it too (spec.md §4.E's two quarantine triggers).
func (d *dispatcher) Dispatch(ctx context.Context, key []byte, reqs []*protocol.Request) ([]*protocol.Response, error) {
	addr, ok := d.route(key)
	if !ok {
		return nil, fmt.Errorf("memcache: no server available for key")
	}

	sp, ok := d.pool.get(addr)
	if !ok {
		return nil, fmt.Errorf("memcache: no pool entry for server %s", addr)
	}

	resp, err := sp.Execute(ctx, reqs)
	if err != nil {
		if _, ok := err.(*NoValidObjectError); ok {
			d.quarantine(addr)
		}
		if _, ok := err.(*TransportError); ok {
			d.recordWriteOutcome(addr, true)
		}
		return resp, err
	}
	d.recordWriteOutcome(addr, false)
	return resp, nil
}

// multiKeyGroup is one owner server's share of a multi-key request.
type multiKeyGroup struct {
	addr  string
	keys  []string
	reqs  []*protocol.Request
}

// partition groups keys by owning server, skipping keys whose owner is
// none (empty ring) or quarantined (spec.md §4.E "A key whose owner is
// none ... is omitted from the result silently"). build is expected to
// construct a quiet request for multi-key commands (spec.md §4.D
// "Multi-response collation"); partition assigns each request in a group a
// position-unique Opaque (the decoder's only way to tell apart same-opcode
// quiet requests sharing one FIFO) and forces the last request in every
// group to its non-quiet counterpart, so each server sends back exactly
// one terminating frame per batch.
func (d *dispatcher) partition(keys []string, build func(key string) *protocol.Request) []multiKeyGroup {
	byAddr := make(map[string]*multiKeyGroup)
	order := make([]string, 0)
	for _, key := range keys {
		addr, ok := d.route([]byte(key))
		if !ok {
			continue
		}
		g, exists := byAddr[addr]
		if !exists {
			g = &multiKeyGroup{addr: addr}
			byAddr[addr] = g
			order = append(order, addr)
		}
		req := build(key)
		req.Opaque = uint32(len(g.reqs))
		g.keys = append(g.keys, key)
		g.reqs = append(g.reqs, req)
	}
	groups := make([]multiKeyGroup, 0, len(order))
	for _, addr := range order {
		g := byAddr[addr]
		if n := len(g.reqs); n > 0 {
			g.reqs[n-1].Opcode = g.reqs[n-1].Opcode.NonQuiet()
		}
		groups = append(groups, *g)
	}
	return groups
}

// DispatchMulti fans out one batched request per owner server concurrently
// (spec.md §4.E "Multi-key path"), using errgroup in place of the teacher's
// hand-rolled WaitGroup+mutex pattern (batch_commands.go's MultiGet/MultiSet
// did their own fan-out without sharding by server; this generalizes that
// to the multi-server case). It returns, per key that had an owner, the
// response for that key in request order within its group.
func (d *dispatcher) DispatchMulti(ctx context.Context, keys []string, build func(key string) *protocol.Request) (map[string]*protocol.Response, error) {
	groups := d.partition(keys, build)
	if len(groups) == 0 {
		return map[string]*protocol.Response{}, nil
	}

	results := make([]map[string]*protocol.Response, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			sp, ok := d.pool.get(group.addr)
			if !ok {
				return fmt.Errorf("memcache: no pool entry for server %s", group.addr)
			}
			resps, err := sp.Execute(gctx, group.reqs)
			if err != nil {
				if _, ok := err.(*NoValidObjectError); ok {
					d.quarantine(group.addr)
				}
				if _, ok := err.(*TransportError); ok {
					d.recordWriteOutcome(group.addr, true)
				}
				return err
			}
			d.recordWriteOutcome(group.addr, false)
			m := make(map[string]*protocol.Response, len(group.keys))
			for j, key := range group.keys {
				if j < len(resps) {
					m[key] = resps[j]
				}
			}
			results[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]*protocol.Response)
	for _, m := range results {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged, nil
}
