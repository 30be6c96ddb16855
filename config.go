package memcache

import (
	"context"
	"net"
	"time"

	"github.com/memcachex/memcache/protocol"
)

// DialContextFunc is a function that can dial a network connection.
// It's compatible with net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds configuration options for the Memcached client, following
// the teacher's Config naming style (client.go) and extended with the
// pool/health/failover knobs spec.md §6 enumerates.
type Config struct {
	// DialTimeout is the timeout for establishing new connections.
	// Default is 5 seconds if not set.
	DialTimeout time.Duration

	// DialFunc is an optional custom function for dialing new connections.
	// If nil, a default dialer using DialTimeout will be used.
	DialFunc DialContextFunc

	// WriteTimeout is not read by the client: batch writes to a connection
	// carry no write deadline.
	WriteTimeout time.Duration

	// ResponseTimeout bounds the wait for the Noop validation probe's
	// response (BorrowValidate/ReturnValidate and the health monitor's
	// probe). It does not bound ordinary requests, which wait for their
	// response until the caller's context is done. Zero disables the
	// deadline.
	ResponseTimeout time.Duration

	// Min is the floor size of each per-server pool: the number of
	// connections CreateAllMin establishes eagerly and eviction never goes
	// below.
	Min int32

	// Max is the ceiling size of each per-server pool.
	// Default is 10 if not set.
	Max int32

	// KeepAlive is the idle duration after which a connection beyond Min
	// becomes eligible for eviction. Negative disables idle eviction
	// entirely.
	KeepAlive time.Duration

	// Disposable allows the pool to hand out single-use, uncounted
	// connections once Max is reached instead of making the caller wait.
	Disposable bool

	// BorrowValidate runs the validation probe on a connection before
	// handing it to a caller.
	BorrowValidate bool

	// ReturnValidate runs the validation probe on a connection when it is
	// released back to the pool.
	ReturnValidate bool

	// UsePuddlePool selects the puddle-backed pool instead of the default
	// channel-backed pool. Puddle has no notion of Min, Disposable, or
	// validation, so those fields are ignored when this is set.
	UsePuddlePool bool

	// HealthInterval is the period between health-monitor probe sweeps.
	// Zero or negative disables the monitor, as does Failover == false.
	HealthInterval time.Duration

	// Failover enables the health monitor: quarantined servers are probed
	// on HealthInterval and revived on success. When false, a failing
	// server is never retried automatically.
	Failover bool

	// PreferRemoteConfig, when true, ignores the local static server list
	// once a coordination service listener has delivered a server set.
	PreferRemoteConfig bool

	// BreakerMaxRequests, BreakerInterval, BreakerTimeout configure the
	// per-server circuit breaker (github.com/sony/gobreaker/v2). A zero
	// BreakerMaxRequests defaults to 1 and a zero or negative BreakerTimeout
	// to 30s; DisableCircuitBreaker is the only way to turn the breaker off.
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	DisableCircuitBreaker bool

	// CircuitBreakerFactory, when set, replaces the default gobreaker-backed
	// breaker entirely: newCircuitBreaker calls it once per server address
	// instead of building one from BreakerMaxRequests/Interval/Timeout. Lets
	// callers swap in their own CircuitBreaker implementation.
	CircuitBreakerFactory func(addr string) CircuitBreaker

	// Logger receives diagnostic output (connection churn, quarantine
	// transitions, probe failures). Defaults to a log.Default()-backed
	// implementation when nil.
	Logger Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.DialFunc == nil {
		var d net.Dialer
		out.DialFunc = d.DialContext
	}
	if out.Max <= 0 {
		out.Max = 10
	}
	if out.Min < 0 {
		out.Min = 0
	}
	if out.Min > out.Max {
		out.Min = out.Max
	}
	if out.KeepAlive == 0 {
		out.KeepAlive = 2 * time.Minute
	}
	if out.Logger == nil {
		out.Logger = defaultLogger{}
	}
	return out
}

// dialer returns the dial function to use for new connections, always
// wrapping it with DialTimeout; an earlier deadline already on the caller's
// context still applies.
func (c *Config) dialer() DialContextFunc {
	cfg := c.withDefaults()
	timeout := cfg.DialTimeout
	dial := cfg.DialFunc
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return dial(ctx, network, address)
	}
}

// newPool builds the per-server Pool backend selected by the config,
// wiring the validation probe used for both BorrowValidate/ReturnValidate
// (spec.md §4.B) from the Noop probe built by probeValidator below.
func (c *Config) newPool(constructor func(ctx context.Context) (*Connection, error)) (Pool, error) {
	cfg := c.withDefaults()

	if cfg.UsePuddlePool {
		return NewPuddlePool(constructor, cfg.Max)
	}

	poolCfg := PoolConfig{
		Min:            cfg.Min,
		Max:            cfg.Max,
		KeepAlive:      cfg.KeepAlive,
		Disposable:     cfg.Disposable,
		BorrowValidate: cfg.BorrowValidate,
		ReturnValidate: cfg.ReturnValidate,
	}

	var validate Validator
	if poolCfg.BorrowValidate || poolCfg.ReturnValidate {
		validate = probeValidator(cfg.ResponseTimeout)
	}

	return NewChannelPool(constructor, poolCfg, validate)
}

// probeValidator builds a Validator around the Noop probe (spec.md §4.E/
// §4.F "Connection validation probe reuse"), sending a single Noop request
// directly on the candidate connection and waiting for its response.
func probeValidator(timeout time.Duration) Validator {
	return func(ctx context.Context, conn *Connection) bool {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		req := newInflightRequest(&protocol.Request{Opcode: protocol.OpNoop})
		if err := conn.Send([]*inflightRequest{req}); err != nil {
			return false
		}
		_, _, err := req.wait(ctx)
		return err == nil
	}
}

// newCircuitBreaker builds the per-server circuit breaker, or nil when
// circuit-breaking is disabled. A CircuitBreakerFactory overrides the
// default gobreaker-backed breaker entirely.
func (c *Config) newCircuitBreaker(addr string) CircuitBreaker {
	cfg := c.withDefaults()
	if cfg.DisableCircuitBreaker {
		return nil
	}
	if cfg.CircuitBreakerFactory != nil {
		return cfg.CircuitBreakerFactory(addr)
	}

	maxRequests := cfg.BreakerMaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewGobreakerConfig(maxRequests, cfg.BreakerInterval, timeout)(addr)
}
