package memcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcachex/memcache/protocol"
)

// recordingLogger captures every Printf call so a test can assert that a
// recoverable dispatch failure was logged rather than silently dropped
// (spec.md §7 "return the nothing-happened value ... and log").
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func TestClient_IncrementDecrement(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, _, _ []byte) []byte {
			value := make([]byte, 8)
			binary.BigEndian.PutUint64(value, 41)
			return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, nil, nil, value)
		})
	}, Config{})

	n, err := client.Increment(context.Background(), "counter", 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), n)

	n, err = client.Decrement(context.Background(), "counter", 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), n)
}

func TestClient_AppendPrepend(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, echo(protocol.StatusNoError, nil, nil, nil))
	}, Config{})

	ok, err := client.Append(context.Background(), "k", []byte("tail"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Prepend(context.Background(), "k", []byte("head"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_TouchAndGetAndTouch(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, _, _ []byte) []byte {
			if h.opcode == protocol.OpGAT {
				return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, flagsExtras(1), nil, []byte("v"))
			}
			return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, nil, nil, nil)
		})
	}, Config{})

	ok, err := client.Touch(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	item, err := client.GetAndTouch(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, item.Found)
	assert.Equal(t, "v", string(item.Value))
}

func TestClient_FlushAllServers(t *testing.T) {
	var flushed bool
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, _, _, _ []byte) []byte {
			if h.opcode == protocol.OpFlush {
				flushed = true
			}
			return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, nil, nil, nil)
		})
	}, Config{})

	require.NoError(t, client.Flush(context.Background(), 0))
	assert.True(t, flushed)
}

func TestClient_Stat(t *testing.T) {
	client := newTestClient(t, "b:1", func(c net.Conn) {
		scriptedServer(c,
			echo(protocol.StatusNoError, nil, []byte("pid"), []byte("7")),
			echo(protocol.StatusNoError, nil, []byte("uptime"), []byte("99")),
			echo(protocol.StatusNoError, nil, nil, nil),
		)
	}, Config{})

	out, err := client.Stat(context.Background(), "")
	require.NoError(t, err)
	require.Contains(t, out, "b:1")
	assert.Equal(t, "7", out["b:1"]["pid"])
	assert.Equal(t, "99", out["b:1"]["uptime"])
}

func TestClient_Version(t *testing.T) {
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, echo(protocol.StatusNoError, nil, nil, []byte("1.6.21")))
	}, Config{})

	out, err := client.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.6.21", out["a:1"])
}

func TestClient_Verbosity(t *testing.T) {
	var gotLevel uint32
	client := newTestClient(t, "a:1", func(c net.Conn) {
		serveLoop(c, func(h reqHeader, extras, _, _ []byte) []byte {
			gotLevel = binary.BigEndian.Uint32(extras)
			return respFrame(h.opcode, protocol.StatusNoError, h.opaque, h.cas, nil, nil, nil)
		})
	}, Config{})

	require.NoError(t, client.Verbosity(context.Background(), 2))
	assert.Equal(t, uint32(2), gotLevel)
}

// TestClient_GetLogsAndReturnsNothingHappenedOnDispatchFailure exercises
// spec.md §7's propagation policy for a recoverable dispatch failure: Get
// must return Found=false with a nil error, and the failure must still be
// observable via Config.Logger, not silently dropped.
func TestClient_GetLogsAndReturnsNothingHappenedOnDispatchFailure(t *testing.T) {
	logger := &recordingLogger{}
	client := newTestClient(t, "a:1", func(c net.Conn) {
		// Close the pipe immediately with no response: the waiting request
		// observes a transport failure.
		c.Close()
	}, Config{Logger: logger})

	item, err := client.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, item.Found)
	assert.Greater(t, logger.count(), 0)
}

// TestClient_DeleteReturnsNothingHappenedOnDispatchFailure exercises the
// same policy for a boolean-result façade method.
func TestClient_DeleteReturnsNothingHappenedOnDispatchFailure(t *testing.T) {
	logger := &recordingLogger{}
	client := newTestClient(t, "a:1", func(c net.Conn) {
		c.Close()
	}, Config{Logger: logger})

	ok, err := client.Delete(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, logger.count(), 0)
}

// TestClient_StatSkipsFailingServerAndLogs verifies a multi-server sweep
// logs and omits a failing server instead of aborting the whole call.
func TestClient_StatSkipsFailingServerAndLogs(t *testing.T) {
	logger := &recordingLogger{}
	client := newMultiServerClient(t, []string{"a:1"})
	client.config.Logger = logger

	// Replace the one server's pool entry with one whose dial always fails.
	cfg := Config{Max: 1, DisableCircuitBreaker: true, Logger: logger, DialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, fmt.Errorf("dial refused")
	}}
	sp, err := NewServerPool("a:1", cfg)
	require.NoError(t, err)
	client.pool.mu.Lock()
	client.pool.entries["a:1"] = sp
	client.pool.mu.Unlock()

	out, err := client.Stat(context.Background(), "")
	require.NoError(t, err)
	assert.NotContains(t, out, "a:1")
	assert.Greater(t, logger.count(), 0)
}
