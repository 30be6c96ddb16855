package memcache

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/memcachex/memcache/protocol"
)

// Item is the result of a Get-family lookup.
type Item struct {
	Key   string
	Value []byte
	Flags uint32
	CAS   uint64
	Found bool
}

func expirySeconds(ttl time.Duration) uint32 {
	if ttl <= 0 {
		return 0
	}
	return uint32(ttl / time.Second)
}

func setExtras(flags uint32, ttl time.Duration) []byte {
	extras := make([]byte, 8)
	binary.BigEndian.PutUint32(extras[0:4], flags)
	binary.BigEndian.PutUint32(extras[4:8], expirySeconds(ttl))
	return extras
}

func touchExtras(ttl time.Duration) []byte {
	extras := make([]byte, 4)
	binary.BigEndian.PutUint32(extras[0:4], expirySeconds(ttl))
	return extras
}

func arithmeticExtras(delta, initial uint64, ttl time.Duration) []byte {
	extras := make([]byte, 20)
	binary.BigEndian.PutUint64(extras[0:8], delta)
	binary.BigEndian.PutUint64(extras[8:16], initial)
	binary.BigEndian.PutUint32(extras[16:20], expirySeconds(ttl))
	return extras
}

// Get fetches a single key. A not-found response, and any recoverable
// dispatch failure (logged by execSingle), both report Found=false rather
// than an error (spec.md §7 "nothing-happened value"); only a use of a
// closed Client returns a non-nil error.
func (c *Client) Get(ctx context.Context, key string) (Item, error) {
	req := &protocol.Request{Opcode: protocol.OpGet, Key: []byte(key)}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return Item{Key: key}, err
	}
	if resp == nil || resp.Status == protocol.StatusKeyNotFound {
		c.stats.recordGet(false)
		return Item{Key: key}, nil
	}
	if resp.IsError() {
		c.stats.recordGet(false)
		return Item{Key: key}, nil
	}
	c.stats.recordGet(true)
	return Item{Key: key, Value: resp.Value, Flags: resp.Flags, CAS: resp.CAS, Found: true}, nil
}

// Set stores value under key with the given TTL (0 = no expiry).
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.stats.recordSet()
	req := &protocol.Request{
		Opcode: protocol.OpSet,
		Key:    []byte(key),
		Extras: setExtras(0, ttl),
		Value:  value,
	}
	_, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	return err
}

// Add stores value under key only if it does not already exist. Returns
// false (not an error) if the key already exists.
func (c *Client) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.stats.recordAdd()
	req := &protocol.Request{
		Opcode: protocol.OpAdd,
		Key:    []byte(key),
		Extras: setExtras(0, ttl),
		Value:  value,
	}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return false, err
	}
	return resp != nil && !resp.IsError(), nil
}

// Replace stores value under key only if it already exists. Returns false
// (not an error) if the key is absent.
func (c *Client) Replace(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	req := &protocol.Request{
		Opcode: protocol.OpReplace,
		Key:    []byte(key),
		Extras: setExtras(0, ttl),
		Value:  value,
	}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return false, err
	}
	return resp != nil && !resp.IsError(), nil
}

// Delete removes key. Returns false (not an error) if the key was absent.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	c.stats.recordDelete()
	req := &protocol.Request{Opcode: protocol.OpDelete, Key: []byte(key)}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return false, err
	}
	return resp != nil && !resp.IsError(), nil
}

// Increment adds delta to the counter stored at key, creating it with
// initial if absent, and returns the new value.
func (c *Client) Increment(ctx context.Context, key string, delta, initial uint64, ttl time.Duration) (uint64, error) {
	c.stats.recordIncrement()
	return c.arithmetic(ctx, protocol.OpIncrement, key, delta, initial, ttl)
}

// Decrement subtracts delta from the counter stored at key, creating it
// with initial if absent, and returns the new value. Decrementing below
// zero floors at zero (memcached semantics).
func (c *Client) Decrement(ctx context.Context, key string, delta, initial uint64, ttl time.Duration) (uint64, error) {
	return c.arithmetic(ctx, protocol.OpDecrement, key, delta, initial, ttl)
}

func (c *Client) arithmetic(ctx context.Context, opcode protocol.Opcode, key string, delta, initial uint64, ttl time.Duration) (uint64, error) {
	req := &protocol.Request{
		Opcode: opcode,
		Key:    []byte(key),
		Extras: arithmeticExtras(delta, initial, ttl),
	}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return 0, err
	}
	if resp == nil || resp.IsError() || len(resp.Value) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(resp.Value), nil
}

// Append appends value to the existing item at key. Returns false if the
// key is absent.
func (c *Client) Append(ctx context.Context, key string, value []byte) (bool, error) {
	return c.concat(ctx, protocol.OpAppend, key, value)
}

// Prepend prepends value to the existing item at key. Returns false if the
// key is absent.
func (c *Client) Prepend(ctx context.Context, key string, value []byte) (bool, error) {
	return c.concat(ctx, protocol.OpPrepend, key, value)
}

func (c *Client) concat(ctx context.Context, opcode protocol.Opcode, key string, value []byte) (bool, error) {
	req := &protocol.Request{Opcode: opcode, Key: []byte(key), Value: value}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return false, err
	}
	return resp != nil && !resp.IsError(), nil
}

// Touch updates key's TTL without fetching its value. Returns false if the
// key is absent.
func (c *Client) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	req := &protocol.Request{Opcode: protocol.OpTouch, Key: []byte(key), Extras: touchExtras(ttl)}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return false, err
	}
	return resp != nil && !resp.IsError(), nil
}

// GetAndTouch fetches key's value and updates its TTL atomically.
func (c *Client) GetAndTouch(ctx context.Context, key string, ttl time.Duration) (Item, error) {
	req := &protocol.Request{Opcode: protocol.OpGAT, Key: []byte(key), Extras: touchExtras(ttl)}
	resp, err := c.execSingle(ctx, req.Key, []*protocol.Request{req})
	if err != nil {
		return Item{Key: key}, err
	}
	if resp == nil || resp.IsError() {
		return Item{Key: key}, nil
	}
	return Item{Key: key, Value: resp.Value, Flags: resp.Flags, CAS: resp.CAS, Found: true}, nil
}

// Flush invalidates every item on every server, honoring delay as the
// expiry extras field (0 = immediate). A server that fails is logged and
// skipped (spec.md §7 propagation policy) rather than aborting the sweep of
// the remaining servers.
func (c *Client) Flush(ctx context.Context, delay time.Duration) error {
	extras := touchExtras(delay)
	for _, addr := range c.pool.addrs() {
		sp, ok := c.pool.get(addr)
		if !ok {
			continue
		}
		req := &protocol.Request{Opcode: protocol.OpFlush, Extras: extras}
		if _, err := sp.Execute(ctx, []*protocol.Request{req}); err != nil {
			c.config.Logger.Printf("memcache: flush failed for %s: %v", addr, err)
		}
	}
	return nil
}

// Stat fetches the server statistics map for every known server, keyed by
// server address. A server that fails is logged and omitted from the
// result rather than failing the whole call (spec.md §7).
func (c *Client) Stat(ctx context.Context, key string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, addr := range c.pool.addrs() {
		sp, ok := c.pool.get(addr)
		if !ok {
			continue
		}
		req := &protocol.Request{Opcode: protocol.OpStat, Key: []byte(key)}
		resps, err := sp.ExecuteStat(ctx, req)
		if err != nil {
			c.config.Logger.Printf("memcache: stat failed for %s: %v", addr, err)
			continue
		}
		m := make(map[string]string, len(resps))
		for _, resp := range resps {
			if resp == nil || len(resp.Key) == 0 {
				continue
			}
			m[string(resp.Key)] = string(resp.Value)
		}
		out[addr] = m
	}
	return out, nil
}

// Version fetches the version string reported by each known server. A
// server that fails is logged and omitted from the result (spec.md §7).
func (c *Client) Version(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, addr := range c.pool.addrs() {
		sp, ok := c.pool.get(addr)
		if !ok {
			continue
		}
		req := &protocol.Request{Opcode: protocol.OpVersion}
		resps, err := sp.Execute(ctx, []*protocol.Request{req})
		if err != nil {
			c.config.Logger.Printf("memcache: version failed for %s: %v", addr, err)
			continue
		}
		if len(resps) > 0 {
			out[addr] = string(resps[0].Value)
		}
	}
	return out, nil
}

// Verbosity sets the server's logging verbosity level on every server. A
// server that fails is logged and skipped (spec.md §7).
func (c *Client) Verbosity(ctx context.Context, level uint32) error {
	extras := make([]byte, 4)
	binary.BigEndian.PutUint32(extras, level)
	for _, addr := range c.pool.addrs() {
		sp, ok := c.pool.get(addr)
		if !ok {
			continue
		}
		req := &protocol.Request{Opcode: protocol.OpVerbosity, Extras: extras}
		if _, err := sp.Execute(ctx, []*protocol.Request{req}); err != nil {
			c.config.Logger.Printf("memcache: verbosity failed for %s: %v", addr, err)
		}
	}
	return nil
}
