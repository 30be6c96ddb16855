package memcache

import (
	"context"
	"strings"
)

// Servers provides the list of memcache server addresses.
// Implementations must be safe for concurrent use.
type Servers interface {
	// List returns the current list of server addresses.
	// The returned slice must not be modified by the caller.
	List() []string
}

// StaticServers is a simple implementation that returns a fixed list of server addresses.
type StaticServers struct {
	addrs []string
}

// NewStaticServers creates a new StaticServers with the given addresses.
func NewStaticServers(addrs ...string) *StaticServers {
	return &StaticServers{addrs: addrs}
}

// List returns the list of server addresses.
func (s *StaticServers) List() []string {
	return s.addrs
}

// CoordinationListener adapts a coordination-service's node-data callbacks
// (spec.md §6) into Client server add/remove calls. bytes encode the
// server list as a UTF-8 string "host:port,host:port,..." with commas or
// spaces as separators; the last ':' in an entry splits host from port, so
// bracketless IPv6 like "::1:11211" still parses correctly (see
// ParseServerList).
type CoordinationListener struct {
	client *Client
	prefer bool

	current map[string]bool
}

// NewCoordinationListener builds a listener that adds/removes servers on
// client as onInit/onCommit/onDestroy fire. preferRemoteConfig mirrors
// Config.PreferRemoteConfig: when true, the local static server list (if
// any) is torn down once the first remote payload arrives.
func NewCoordinationListener(client *Client, preferRemoteConfig bool) *CoordinationListener {
	return &CoordinationListener{client: client, prefer: preferRemoteConfig, current: make(map[string]bool)}
}

// OnInit applies the initial server set.
func (l *CoordinationListener) OnInit(path string, data []byte) error {
	return l.apply(data)
}

// OnCommit applies an updated server set, adding newcomers and removing
// servers no longer present.
func (l *CoordinationListener) OnCommit(path string, data []byte) error {
	return l.apply(data)
}

// OnDestroy removes every server this listener ever added.
func (l *CoordinationListener) OnDestroy(path string) error {
	for addr := range l.current {
		l.client.removeServer(addr)
	}
	l.current = make(map[string]bool)
	return nil
}

func (l *CoordinationListener) apply(data []byte) error {
	next := make(map[string]bool)
	for _, addr := range ParseServerList(string(data)) {
		next[addr] = true
	}

	ctx := context.Background()
	for addr := range next {
		if !l.current[addr] {
			if err := l.client.addServer(ctx, addr); err != nil {
				return err
			}
		}
	}
	if l.prefer {
		for _, addr := range l.client.pool.addrs() {
			if !next[addr] && !l.current[addr] {
				l.client.removeServer(addr)
			}
		}
	}
	for addr := range l.current {
		if !next[addr] {
			l.client.removeServer(addr)
		}
	}
	l.current = next
	return nil
}

// ParseServerList parses the coordination service's "host:port,host:port,..."
// payload (spec.md §6), accepting commas, spaces, tabs or newlines as
// separators and splitting host from port on the last ':' in each entry, so
// bracketless IPv6 addresses like "::1:11211" parse as host "::1" port
// "11211" and are returned in dialable form as "[::1]:11211".
func ParseServerList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			if i := strings.LastIndex(f, ":"); i > 0 && !strings.HasPrefix(f, "[") && strings.Contains(f[:i], ":") {
				f = "[" + f[:i] + "]" + f[i:]
			}
			out = append(out, f)
		}
	}
	return out
}
