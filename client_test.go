package memcache

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcachex/memcache/protocol"
)

func newTestClient(t *testing.T, addr string, handle func(net.Conn), cfg Config) *Client {
	t.Helper()
	cfg.DialFunc = mockDialer(handle)
	cfg.Max = 1
	cfg.DisableCircuitBreaker = true
	client, err := NewClient(NewStaticServers(addr), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_GetSetRoundTrip(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, key, _ []byte) []byte {
			switch h.opcode {
			case protocol.OpSet:
				return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, nil, nil, nil)
			case protocol.OpGet:
				return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, flagsExtras(9), nil, []byte("value-for-"+string(key)))
			default:
				return respFrame(h.opcode, protocol.StatusUnknownCommand, h.opaque, h.cas, nil, nil, nil)
			}
		})
	}, Config{})

	require.NoError(t, client.Set(context.Background(), "foo", []byte("bar"), 0))
	item, err := client.Get(context.Background(), "foo")
	require.NoError(t, err)
	assert.True(t, item.Found)
	assert.Equal(t, "value-for-foo", string(item.Value))
	assert.Equal(t, uint32(9), item.Flags)
}

func TestClient_GetNotFound(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, _, _ []byte) []byte {
			return respFrame(h.opcode, protocol.StatusKeyNotFound, h.opaque, h.cas, nil, nil, nil)
		})
	}, Config{})

	item, err := client.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, item.Found)
}

func TestClient_AddRejectsExisting(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, _, _ []byte) []byte {
			return respFrame(h.opcode, protocol.StatusKeyExists, h.opaque, h.cas, nil, nil, nil)
		})
	}, Config{})

	ok, err := client.Add(context.Background(), "k", []byte("v"), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_DeleteAbsentReturnsFalse(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, _, _ []byte) []byte {
			return respFrame(h.opcode, protocol.StatusKeyNotFound, h.opaque, h.cas, nil, nil, nil)
		})
	}, Config{})

	ok, err := client.Delete(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_StatsTrackHitsAndMisses(t *testing.T) {
	var hit bool
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, _, _ []byte) []byte {
			if hit {
				return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, nil, nil, []byte("v"))
			}
			return respFrame(h.opcode, protocol.StatusKeyNotFound, h.opaque, h.cas, nil, nil, nil)
		})
	}, Config{})

	_, err := client.Get(context.Background(), "miss")
	require.NoError(t, err)
	hit = true
	_, err = client.Get(context.Background(), "hit")
	require.NoError(t, err)

	stats := client.Stats()
	assert.Equal(t, uint64(2), stats.Gets)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(1), stats.CacheMisses)
}

func TestClient_PoolStatsReportsPerServer(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, echo(protocol.StatusNoError, nil, nil, []byte("v")))
	}, Config{})

	_, err := client.Get(context.Background(), "k")
	require.NoError(t, err)

	stats := client.PoolStats()
	require.Contains(t, stats, "a:1")
	assert.Equal(t, int32(1), stats["a:1"].TotalConns)
}

func TestClient_CloseIsIdempotentAndRejectsFurtherOps(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, echo(protocol.StatusNoError, nil, nil, nil))
	}, Config{})

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Get(context.Background(), "k")
	assert.ErrorIs(t, err, errClientClosed)
}

func TestClient_WithCodecReturnsIndependentClone(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, echo(protocol.StatusNoError, nil, nil, nil))
	}, Config{})

	type noopCodec struct{ RawCodec }
	clone := client.WithCodec(noopCodec{})
	assert.NotEqual(t, client.codec, clone.codec)
}

func TestClient_HealthStatsZeroWithoutFailover(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, echo(protocol.StatusNoError, nil, nil, nil))
	}, Config{})

	assert.Equal(t, HealthMonitorStats{}, client.HealthStats())
}
