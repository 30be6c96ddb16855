package memcache

import (
	"bufio"
	"net"
	"sync"

	"github.com/memcachex/memcache/protocol"
)

// NewConnection wraps conn with buffered I/O and starts its read loop. The
// read loop owns conn for reads until the connection fails or is closed;
// callers only ever write to it via Send.
func NewConnection(conn net.Conn) *Connection {
	c := &Connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Connection is a single binary-protocol connection to one server. It owns
// the per-connection in-flight FIFO (spec.md §4.D, "Request Correlator") and
// implements protocol.Correlator so the decoder can demultiplex responses
// against it without the protocol package knowing anything about pools or
// servers.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	mu       sync.Mutex
	inflight []*inflightRequest

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// Send frames reqs in on-wire order, pushes them onto the in-flight FIFO,
// and writes the batch. The FIFO push happens before the write so that a
// response can never be observed before its request is correlatable (spec.md
// §4.C).
func (c *Connection) Send(reqs []*inflightRequest) error {
	protoReqs := make([]*protocol.Request, len(reqs))
	for i, r := range reqs {
		protoReqs[i] = r.req
	}
	batch, err := protocol.EncodeBatch(protoReqs)
	if err != nil {
		return err
	}
	defer batch.Release()

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return &TransportError{Op: "write", Err: c.closeErr}
	default:
	}
	c.inflight = append(c.inflight, reqs...)
	c.mu.Unlock()

	if _, err := batch.WriteTo(c.writer); err != nil {
		wrapped := &TransportError{Op: "write", Err: err}
		c.fail(wrapped)
		return wrapped
	}
	if err := c.writer.Flush(); err != nil {
		wrapped := &TransportError{Op: "flush", Err: err}
		c.fail(wrapped)
		return wrapped
	}
	return nil
}

// Close shuts down the connection and fails any requests still in flight.
func (c *Connection) Close() error {
	c.fail(errRequestDropped)
	return nil
}

func (c *Connection) readLoop() {
	var dec protocol.Decoder
	for {
		if err := dec.DecodeNext(c.reader, c); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Connection) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
		c.conn.Close()
	})

	c.mu.Lock()
	pending := c.inflight
	c.inflight = nil
	c.mu.Unlock()

	for _, r := range pending {
		r.complete(nil, err)
	}
}

// Head implements protocol.Correlator.
func (c *Connection) Head() (protocol.Opcode, uint32, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inflight) == 0 {
		return 0, 0, false, false
	}
	head := c.inflight[0].req
	return head.Opcode, head.Opaque, head.Quiet(), true
}

// Deliver implements protocol.Correlator. Non-terminal frames (intermediate
// Stat entries) accumulate on the head without completing it; only the
// terminal frame pops the FIFO and resolves the waiter.
func (c *Connection) Deliver(resp *protocol.Response, pop bool) {
	c.mu.Lock()
	if len(c.inflight) == 0 {
		c.mu.Unlock()
		return
	}
	head := c.inflight[0]
	if pop {
		c.inflight = c.inflight[1:]
	}
	c.mu.Unlock()

	if pop {
		head.complete(resp, nil)
	} else {
		head.addFrame(resp)
	}
}

// DeliverNoReply implements protocol.Correlator: the quiet head succeeded
// without a frame of its own, so it completes with a nil response.
func (c *Connection) DeliverNoReply() {
	c.mu.Lock()
	if len(c.inflight) == 0 {
		c.mu.Unlock()
		return
	}
	head := c.inflight[0]
	c.inflight = c.inflight[1:]
	c.mu.Unlock()

	head.complete(nil, nil)
}
