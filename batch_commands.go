package memcache

import (
	"context"
	"time"

	"github.com/memcachex/memcache/protocol"
)

// MultiGet fetches multiple keys, fanning out one batched request per
// owner server (spec.md §4.E "Multi-key path"). Keys whose owner is none
// (empty ring) or that come back absent are omitted from the result map,
// matching spec.md §7's "Multi-key operations surface a partial result
// map" policy.
func (c *Client) MultiGet(ctx context.Context, keys []string) (map[string]Item, error) {
	if len(keys) == 0 {
		return map[string]Item{}, nil
	}

	// GetQ is quiet on a miss, not a hit: a miss never produces a frame, so
	// resps holds a nil entry for it below, which the loop already treats
	// as not-found. partition forces the last key in each server's group
	// back to plain Get so the batch always ends in exactly one frame
	// (spec.md §4.D).
	build := func(key string) *protocol.Request {
		return &protocol.Request{Opcode: protocol.OpGetQ, Key: []byte(key)}
	}

	resps, err := c.disp.DispatchMulti(ctx, keys, build)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	out := make(map[string]Item, len(resps))
	for key, resp := range resps {
		if resp == nil || resp.IsError() {
			c.stats.recordGet(false)
			continue
		}
		c.stats.recordGet(true)
		out[key] = Item{Key: key, Value: resp.Value, Flags: resp.Flags, CAS: resp.CAS, Found: true}
	}
	return out, nil
}

// MultiSet stores every item, fanning out one batched request per owner
// server. Returns, per key, whether the store was accepted.
func (c *Client) MultiSet(ctx context.Context, items map[string][]byte, ttl time.Duration) (map[string]bool, error) {
	if len(items) == 0 {
		return map[string]bool{}, nil
	}

	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}

	// SetQ is quiet on success: a nil resp below means the store succeeded
	// silently, not that it failed (spec.md §4.D). partition forces the
	// last key in each server's group back to plain Set.
	build := func(key string) *protocol.Request {
		return &protocol.Request{
			Opcode: protocol.OpSetQ,
			Key:    []byte(key),
			Extras: setExtras(0, ttl),
			Value:  items[key],
		}
	}

	resps, err := c.disp.DispatchMulti(ctx, keys, build)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	out := make(map[string]bool, len(keys))
	for _, key := range keys {
		c.stats.recordSet()
		resp, ok := resps[key]
		out[key] = ok && (resp == nil || !resp.IsError())
	}
	return out, nil
}

// MultiDelete removes every key, fanning out one batched request per owner
// server. Returns, per key, whether it was present and removed.
func (c *Client) MultiDelete(ctx context.Context, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return map[string]bool{}, nil
	}

	// DeleteQ is quiet on success, same as SetQ above.
	build := func(key string) *protocol.Request {
		return &protocol.Request{Opcode: protocol.OpDeleteQ, Key: []byte(key)}
	}

	resps, err := c.disp.DispatchMulti(ctx, keys, build)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	out := make(map[string]bool, len(keys))
	for _, key := range keys {
		c.stats.recordDelete()
		resp, ok := resps[key]
		out[key] = ok && (resp == nil || !resp.IsError())
	}
	return out, nil
}
