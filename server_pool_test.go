package memcache

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcachex/memcache/protocol"
)

func testConfig(dial DialContextFunc) Config {
	return Config{
		DialFunc:              dial,
		Max:                   1,
		DisableCircuitBreaker: true,
	}
}

func TestServerPool_ExecuteSingleRequest(t *testing.T) {
	dial := mockDialer(func(server net.Conn) {
		scriptedServer(server, echo(protocol.StatusNoError, flagsExtras(3), nil, []byte("bar")))
	})
	sp, err := NewServerPool("127.0.0.1:11211", testConfig(dial))
	require.NoError(t, err)

	req := &protocol.Request{Opcode: protocol.OpGet, Key: []byte("foo")}
	resps, err := sp.Execute(context.Background(), []*protocol.Request{req})
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "bar", string(resps[0].Value))
	assert.Equal(t, "127.0.0.1:11211", sp.Address())
}

func TestServerPool_ExecuteReusesConnectionAcrossCalls(t *testing.T) {
	dial := mockDialer(func(server net.Conn) {
		scriptedServer(server,
			echo(protocol.StatusNoError, nil, nil, []byte("v1")),
			echo(protocol.StatusNoError, nil, nil, []byte("v2")),
		)
	})
	sp, err := NewServerPool("127.0.0.1:11211", testConfig(dial))
	require.NoError(t, err)

	r1 := &protocol.Request{Opcode: protocol.OpGet, Key: []byte("k1")}
	resps, err := sp.Execute(context.Background(), []*protocol.Request{r1})
	require.NoError(t, err)
	assert.Equal(t, "v1", string(resps[0].Value))

	r2 := &protocol.Request{Opcode: protocol.OpGet, Key: []byte("k2")}
	resps, err = sp.Execute(context.Background(), []*protocol.Request{r2})
	require.NoError(t, err)
	assert.Equal(t, "v2", string(resps[0].Value))
}

func TestServerPool_ExecuteStatDropsTerminator(t *testing.T) {
	dial := mockDialer(func(server net.Conn) {
		scriptedServer(server,
			echo(protocol.StatusNoError, nil, []byte("pid"), []byte("42")),
			echo(protocol.StatusNoError, nil, []byte("version"), []byte("1.6")),
			echo(protocol.StatusNoError, nil, nil, nil),
		)
	})
	sp, err := NewServerPool("127.0.0.1:11211", testConfig(dial))
	require.NoError(t, err)

	req := &protocol.Request{Opcode: protocol.OpStat}
	resps, err := sp.ExecuteStat(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resps, 2)
	assert.Equal(t, "pid", string(resps[0].Key))
	assert.Equal(t, "version", string(resps[1].Key))
}

func TestServerPool_ExecuteErrorDestroysConnection(t *testing.T) {
	dial := mockDialer(func(server net.Conn) {
		// Close the pipe immediately without responding: the waiting
		// request observes a connection failure.
		server.Close()
	})
	sp, err := NewServerPool("127.0.0.1:11211", testConfig(dial))
	require.NoError(t, err)

	req := &protocol.Request{Opcode: protocol.OpGet, Key: []byte("x")}
	_, err = sp.Execute(context.Background(), []*protocol.Request{req})
	assert.Error(t, err)
}

// TestServerPool_ExecuteCollatesQuietBatch exercises the quiet-except-last
// batching spec.md §4.D describes: the server suppresses a reply for the
// quiet misses and sends exactly one frame for the forced-non-quiet final
// request. Execute must report a nil response for each silent request (the
// "quiet success, no frame" signal) and the real frame for the last.
func TestServerPool_ExecuteCollatesQuietBatch(t *testing.T) {
	dial := mockDialer(func(server net.Conn) {
		scriptedServer(server,
			noReply(),
			noReply(),
			echo(protocol.StatusNoError, nil, nil, []byte("val-k3")),
		)
	})
	sp, err := NewServerPool("127.0.0.1:11211", testConfig(dial))
	require.NoError(t, err)

	reqs := []*protocol.Request{
		{Opcode: protocol.OpGetQ, Key: []byte("k1"), Opaque: 0},
		{Opcode: protocol.OpGetQ, Key: []byte("k2"), Opaque: 1},
		{Opcode: protocol.OpGet, Key: []byte("k3"), Opaque: 2},
	}
	resps, err := sp.Execute(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, resps, 3)
	assert.Nil(t, resps[0])
	assert.Nil(t, resps[1])
	require.NotNil(t, resps[2])
	assert.Equal(t, "val-k3", string(resps[2].Value))
}

func TestServerPool_CircuitBreakerWrapsExecute(t *testing.T) {
	dial := mockDialer(func(server net.Conn) {
		scriptedServer(server, echo(protocol.StatusNoError, nil, nil, []byte("ok")))
	})
	cfg := Config{DialFunc: dial, Max: 1}
	sp, err := NewServerPool("127.0.0.1:11211", cfg)
	require.NoError(t, err)
	require.NotNil(t, sp.circuitBreaker)

	req := &protocol.Request{Opcode: protocol.OpGet, Key: []byte("k")}
	resps, err := sp.Execute(context.Background(), []*protocol.Request{req})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resps[0].Value))
	assert.Equal(t, CircuitStateClosed, sp.Stats().CircuitBreakerState)
}
