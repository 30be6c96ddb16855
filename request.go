package memcache

import (
	"context"
	"errors"

	"github.com/memcachex/memcache/protocol"
)

// inflightRequest is one request waiting on a connection's in-flight FIFO for
// its response. It carries the outbound frame plus a one-shot completion
// latch, the same pattern the meta-protocol Command used for its ready
// channel, generalized to the binary protocol's positional correlation.
type inflightRequest struct {
	req *protocol.Request

	// frames accumulates every response frame delivered for this request
	// before it pops the FIFO (spec.md §4.D "Multi-response collation": a
	// Stat request collects every intermediate frame, keyed-empty
	// terminator included, as one logical response).
	frames []*protocol.Response
	err    error

	ready chan struct{}
}

func newInflightRequest(req *protocol.Request) *inflightRequest {
	return &inflightRequest{req: req, ready: make(chan struct{})}
}

// wait blocks until the request is completed or ctx is done, returning the
// single response frame (the common case) and every accumulated frame (for
// multi-frame responses such as Stat).
func (r *inflightRequest) wait(ctx context.Context) (*protocol.Response, []*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	select {
	case <-r.ready:
		if r.err != nil {
			return nil, nil, r.err
		}
		if len(r.frames) == 0 {
			return nil, nil, nil
		}
		return r.frames[len(r.frames)-1], r.frames, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// addFrame records an intermediate response frame without completing the
// request (used for non-terminal Stat frames).
func (r *inflightRequest) addFrame(resp *protocol.Response) {
	r.frames = append(r.frames, resp)
}

// complete resolves the request, appending a final frame if non-nil, and
// exactly once signals waiters. Completing an already-completed request is a
// no-op: NO_REPLY completion and connection failure both call complete
// defensively, and only the first call may win.
func (r *inflightRequest) complete(resp *protocol.Response, err error) {
	select {
	case <-r.ready:
		return
	default:
		if resp != nil {
			r.frames = append(r.frames, resp)
		}
		r.err = err
		close(r.ready)
	}
}

// errRequestDropped is delivered to any request still in flight when its
// connection is destroyed before a response arrives.
var errRequestDropped = errors.New("memcache: connection closed with request in flight")
