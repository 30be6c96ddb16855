package memcache

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// defaultVirtualNodes is the number of ring tokens generated per server
// identity, matching the teacher's ConsistentHashSelector default order of
// magnitude (150), rounded up for smoother distribution with few servers.
const defaultVirtualNodes = 160

// ringToken is one point on the hash ring: a hash value plus the server it
// belongs to, so that a tie on hash can still be broken deterministically.
type ringToken struct {
	hash   uint64
	server string
}

// ringSnapshot is the immutable ring state swapped atomically on every
// add/remove (spec.md §4.A "writers serialize ... readers must never
// observe a torn ring").
type ringSnapshot struct {
	tokens  []ringToken
	servers map[string]bool
}

func emptyRingSnapshot() *ringSnapshot {
	return &ringSnapshot{servers: make(map[string]bool)}
}

// get returns the server owning keyBytes, or "" if the ring is empty.
func (s *ringSnapshot) get(keyBytes []byte) string {
	if len(s.tokens) == 0 {
		return ""
	}
	h := xxh3.Hash(keyBytes)
	idx := sort.Search(len(s.tokens), func(i int) bool {
		return s.tokens[i].hash >= h
	})
	if idx == len(s.tokens) {
		idx = 0
	}
	return s.tokens[idx].server
}

// Ring is a consistent-hash ring over server identities (spec.md §4.A).
// Hashing uses xxh3 (64-bit, non-cryptographic, keyed only by input bytes,
// deterministic across processes) for both key lookup and virtual-node
// token generation, generalizing the teacher's ConsistentHashSelector from
// crc32 to the pack's xxh3 dependency and from a fixed pool map to a
// snapshot swapped under atomic.Pointer so readers never take a lock.
type Ring struct {
	virtualNodes int
	mu           sync.Mutex // serializes writers; readers use the atomic snapshot
	snapshot     atomic.Pointer[ringSnapshot]
}

// NewRing builds an empty ring. virtualNodes <= 0 selects the default.
func NewRing(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = defaultVirtualNodes
	}
	r := &Ring{virtualNodes: virtualNodes}
	r.snapshot.Store(emptyRingSnapshot())
	return r
}

// Add inserts server into the ring. A no-op if already present.
func (r *Ring) Add(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snapshot.Load()
	if cur.servers[server] {
		return
	}
	r.storeLocked(withServer(cur, server, true), r.virtualNodes, server, true)
}

// Remove deletes server from the ring. A no-op if absent.
func (r *Ring) Remove(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snapshot.Load()
	if !cur.servers[server] {
		return
	}
	r.storeLocked(withServer(cur, server, false), r.virtualNodes, server, false)
}

// storeLocked rebuilds and swaps the snapshot; called with r.mu held.
func (r *Ring) storeLocked(servers map[string]bool, virtualNodes int, _ string, _ bool) {
	next := &ringSnapshot{servers: servers}
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	tokens := make([]ringToken, 0, len(names)*virtualNodes)
	for _, name := range names {
		for i := 0; i < virtualNodes; i++ {
			key := name + "#" + strconv.Itoa(i)
			tokens = append(tokens, ringToken{hash: xxh3.HashString(key), server: name})
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].hash != tokens[j].hash {
			return tokens[i].hash < tokens[j].hash
		}
		return tokens[i].server < tokens[j].server // spec.md §4.A tie-break
	})
	next.tokens = tokens
	r.snapshot.Store(next)
}

func withServer(cur *ringSnapshot, server string, present bool) map[string]bool {
	out := make(map[string]bool, len(cur.servers)+1)
	for k, v := range cur.servers {
		out[k] = v
	}
	if present {
		out[server] = true
	} else {
		delete(out, server)
	}
	return out
}

// Contains reports whether server currently has tokens on the ring.
func (r *Ring) Contains(server string) bool {
	return r.snapshot.Load().servers[server]
}

// Get returns the server owning keyBytes, or "" if the ring is empty
// (spec.md §4.A "get(keyBytes) → server | none").
func (r *Ring) Get(keyBytes []byte) string {
	return r.snapshot.Load().get(keyBytes)
}

// Clear removes every server from the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.Store(emptyRingSnapshot())
}

// Servers returns the current server set in sorted order.
func (r *Ring) Servers() []string {
	cur := r.snapshot.Load()
	out := make([]string, 0, len(cur.servers))
	for s := range cur.servers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
