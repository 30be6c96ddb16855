package memcache

import "log"

// Logger receives diagnostic output from the pool and health monitor:
// connection churn, quarantine transitions, probe failures. The teacher
// never pulls in a structured logging library, so this stays a thin
// interface over the standard library's log package.
type Logger interface {
	Printf(format string, args ...any)
}

// defaultLogger backs Config.Logger when the caller leaves it nil,
// delegating to log.Default().
type defaultLogger struct{}

func (defaultLogger) Printf(format string, args ...any) {
	log.Printf(format, args...)
}

// NoopLogger discards everything. Useful in tests.
type NoopLogger struct{}

func (NoopLogger) Printf(format string, args ...any) {}
