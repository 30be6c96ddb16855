package memcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/memcachex/memcache/protocol"
)

// healthMonitor runs the cooperative probe-revive loop of spec.md §4.F. A
// single time.Ticker drives it; an atomic.Bool reentrancy guard (rather
// than golang.org/x/sync/semaphore, deliberately — see dispatcher/config
// grounding notes) drops a tick that arrives while the previous one is
// still running instead of queuing it.
type healthMonitor struct {
	ring       *Ring
	pool       *keyedPool
	dispatcher *dispatcher
	config     Config

	ticker  *time.Ticker
	done    chan struct{}
	running atomic.Bool

	stats healthMonitorStatsCollector
}

// newHealthMonitor builds the monitor. Disabled (returns nil) when
// Config.Failover is false or HealthInterval <= 0, per spec.md §4.F: once
// disabled, servers that drop out stay out.
func newHealthMonitor(ring *Ring, pool *keyedPool, disp *dispatcher, config Config) *healthMonitor {
	cfg := config.withDefaults()
	if !cfg.Failover || cfg.HealthInterval <= 0 {
		return nil
	}
	return &healthMonitor{
		ring:       ring,
		pool:       pool,
		dispatcher: disp,
		config:     cfg,
		ticker:     time.NewTicker(cfg.HealthInterval),
		done:       make(chan struct{}),
	}
}

func (h *healthMonitor) start() {
	go h.loop()
}

func (h *healthMonitor) stop() {
	h.ticker.Stop()
	close(h.done)
}

func (h *healthMonitor) loop() {
	for {
		select {
		case t := <-h.ticker.C:
			h.tick(t)
		case <-h.done:
			return
		}
	}
}

// tick runs exactly one sweep, dropped entirely if a previous sweep is
// still in flight (spec.md §4.F step-by-step procedure).
func (h *healthMonitor) tick(now time.Time) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer h.running.Store(false)

	h.stats.recordProbe(now)
	h.stats.setQuarantinedCount(len(h.dispatcher.quarantinedServers()))

	quarantined := h.dispatcher.quarantinedServers()
	revived := make([]string, 0, len(quarantined))
	for _, addr := range quarantined {
		if h.probe(addr) {
			revived = append(revived, addr)
		}
	}

	for _, addr := range revived {
		if err := h.readd(addr); err != nil {
			h.config.Logger.Printf("memcache: health monitor: re-add of %s failed, re-quarantining: %v", addr, err)
			continue
		}
		h.dispatcher.revive(addr)
		h.stats.recordRevival()
	}

	h.stats.setQuarantinedCount(len(h.dispatcher.quarantinedServers()))
}

// probe opens a fresh, untracked connection to addr, runs the validation
// probe, and closes it regardless of outcome (spec.md §4.F step 2).
func (h *healthMonitor) probe(addr string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.DialTimeout)
	defer cancel()

	dial := h.config.dialer()
	netConn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn := NewConnection(netConn)
	defer conn.Close()

	req := newInflightRequest(&protocol.Request{Opcode: protocol.OpNoop})
	if err := conn.Send([]*inflightRequest{req}); err != nil {
		return false
	}

	probeCtx := ctx
	if h.config.ResponseTimeout > 0 {
		var probeCancel context.CancelFunc
		probeCtx, probeCancel = context.WithTimeout(ctx, h.config.ResponseTimeout)
		defer probeCancel()
	}
	_, _, err = req.wait(probeCtx)
	return err == nil
}

// readd re-adds addr via the ring+pool addServer path in non-initial mode:
// the pool entry is created first and the ring gets its tokens back only
// after that, so routing never reaches a server with no pool entry
// (spec.md §4.F step 4).
func (h *healthMonitor) readd(addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.DialTimeout)
	defer cancel()
	if err := h.pool.addServer(ctx, addr); err != nil {
		return err
	}
	h.ring.Add(addr)
	return nil
}

// statsSnapshot exposes the health monitor's running totals for Client.HealthStats.
func (h *healthMonitor) statsSnapshot() HealthMonitorStats {
	return h.stats.snapshot()
}
