package memcache

import (
	"context"
	"sync"
)

// keyedPool owns one ServerPool per server address: the per-server
// granularity spec.md §4.B's createAllMinObjects/destroy(server)/destroy()
// operations operate at. The per-connection operations themselves
// (borrow/return/remove) live one level down, inside each ServerPool's
// channelPool (or puddlePool).
type keyedPool struct {
	config Config

	mu      sync.RWMutex
	entries map[string]*ServerPool
}

func newKeyedPool(config Config) *keyedPool {
	return &keyedPool{
		config:  config,
		entries: make(map[string]*ServerPool),
	}
}

// addServer creates a ServerPool for addr and eagerly fills it to
// Config.Min (spec.md §4.B "createAllMinObjects"). A no-op if addr already
// has an entry.
func (k *keyedPool) addServer(ctx context.Context, addr string) error {
	k.mu.Lock()
	if _, ok := k.entries[addr]; ok {
		k.mu.Unlock()
		return nil
	}
	sp, err := NewServerPool(addr, k.config)
	if err != nil {
		k.mu.Unlock()
		return err
	}
	k.entries[addr] = sp
	k.mu.Unlock()

	return sp.pool.CreateAllMin(ctx)
}

// removeServer destroys addr's pool entry: every idle connection is
// closed, in-flight returns are destroyed on arrival, and subsequent
// Stats(addr) calls read the sentinel -1 (spec.md §4.B "destroy(server)").
func (k *keyedPool) removeServer(addr string) {
	k.mu.Lock()
	sp, ok := k.entries[addr]
	if ok {
		delete(k.entries, addr)
	}
	k.mu.Unlock()
	if ok {
		sp.pool.Close()
	}
}

// get returns the ServerPool for addr, if any.
func (k *keyedPool) get(addr string) (*ServerPool, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	sp, ok := k.entries[addr]
	return sp, ok
}

// addrs returns every server address with a live pool entry.
func (k *keyedPool) addrs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.entries))
	for addr := range k.entries {
		out = append(out, addr)
	}
	return out
}

// stats returns addr's pool statistics, or the sentinel -1 values if addr
// has no entry (spec.md §4.B "Observers on a non-existent server entry").
func (k *keyedPool) stats(addr string) PoolStats {
	sp, ok := k.get(addr)
	if !ok {
		return unknownPoolStats
	}
	return sp.pool.Stats()
}

// destroy closes every server entry (spec.md §4.B "destroy() (pool-wide)").
func (k *keyedPool) destroy() {
	k.mu.Lock()
	entries := k.entries
	k.entries = make(map[string]*ServerPool)
	k.mu.Unlock()

	for _, sp := range entries {
		sp.pool.Close()
	}
}
