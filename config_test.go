package memcache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gobreakerTestSettings() gobreaker.Settings {
	return gobreaker.Settings{Name: "test"}
}

func TestConfig_WithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}
	out := cfg.withDefaults()
	assert.Equal(t, 5*time.Second, out.DialTimeout)
	assert.NotNil(t, out.DialFunc)
	assert.Equal(t, int32(10), out.Max)
	assert.Equal(t, int32(0), out.Min)
	assert.Equal(t, 2*time.Minute, out.KeepAlive)
	assert.NotNil(t, out.Logger)
}

func TestConfig_WithDefaultsClampsMinToMax(t *testing.T) {
	cfg := Config{Min: 20, Max: 5}
	out := cfg.withDefaults()
	assert.Equal(t, int32(5), out.Min)
	assert.Equal(t, int32(5), out.Max)
}

func TestConfig_WithDefaultsNegativeMinClampedToZero(t *testing.T) {
	cfg := Config{Min: -5}
	out := cfg.withDefaults()
	assert.Equal(t, int32(0), out.Min)
}

func TestConfig_WithDefaultsPreservesExplicitValues(t *testing.T) {
	logger := defaultLogger{}
	cfg := Config{DialTimeout: time.Second, Max: 3, Min: 1, KeepAlive: time.Minute, Logger: logger}
	out := cfg.withDefaults()
	assert.Equal(t, time.Second, out.DialTimeout)
	assert.Equal(t, int32(3), out.Max)
	assert.Equal(t, int32(1), out.Min)
	assert.Equal(t, time.Minute, out.KeepAlive)
}

func TestConfig_DialerWrapsTimeout(t *testing.T) {
	called := false
	cfg := Config{
		DialTimeout: 10 * time.Millisecond,
		DialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			called = true
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 50*time.Millisecond)
			return nil, context.DeadlineExceeded
		},
	}
	dial := cfg.dialer()
	_, err := dial(context.Background(), "tcp", "a:1")
	assert.Error(t, err)
	assert.True(t, called)
}

func TestConfig_NewPoolSelectsChannelPoolByDefault(t *testing.T) {
	cfg := Config{Max: 2}
	pool, err := cfg.newPool(func(ctx context.Context) (*Connection, error) {
		return newNoopConnection(), nil
	})
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, pool.CreateAllMin(context.Background()))
}

func TestConfig_NewPoolSelectsPuddleWhenConfigured(t *testing.T) {
	cfg := Config{Max: 2, UsePuddlePool: true}
	pool, err := cfg.newPool(func(ctx context.Context) (*Connection, error) {
		return newNoopConnection(), nil
	})
	require.NoError(t, err)
	defer pool.Close()

	r, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	r.Release()
}

func TestConfig_ProbeValidatorSucceedsOnNoopResponse(t *testing.T) {
	conn := newNoopConnection()
	validate := probeValidator(time.Second)
	assert.True(t, validate(context.Background(), conn))
}

func TestConfig_NewCircuitBreakerDisabled(t *testing.T) {
	cfg := Config{DisableCircuitBreaker: true}
	assert.Nil(t, cfg.newCircuitBreaker("a:1"))
}

func TestConfig_NewCircuitBreakerUsesFactoryOverride(t *testing.T) {
	called := ""
	cfg := Config{
		CircuitBreakerFactory: func(addr string) CircuitBreaker {
			called = addr
			return NewGoBreaker(gobreakerTestSettings())
		},
	}
	cb := cfg.newCircuitBreaker("a:1")
	require.NotNil(t, cb)
	assert.Equal(t, "a:1", called)
}

func TestConfig_NewCircuitBreakerDefaultsToGobreaker(t *testing.T) {
	cfg := Config{}
	cb := cfg.newCircuitBreaker("a:1")
	require.NotNil(t, cb)
	assert.Equal(t, CircuitStateClosed, cb.State())
}
