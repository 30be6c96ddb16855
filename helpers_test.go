package memcache

import (
	"context"
	"encoding/binary"
	"io"
	"net"

	"github.com/memcachex/memcache/protocol"
)

// reqHeader mirrors the 24-byte wire header layout just enough to let a
// test-side fake server parse an outgoing request without depending on the
// protocol package's request-encoding internals.
type reqHeader struct {
	opcode       protocol.Opcode
	keyLength    uint16
	extrasLength uint8
	bodyLength   uint32
	opaque       uint32
	cas          uint64
}

func readReqHeader(r io.Reader) (reqHeader, error) {
	var buf [protocol.HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return reqHeader{}, err
	}
	return reqHeader{
		opcode:       protocol.Opcode(buf[1]),
		keyLength:    binary.BigEndian.Uint16(buf[2:4]),
		extrasLength: buf[4],
		bodyLength:   binary.BigEndian.Uint32(buf[8:12]),
		opaque:       binary.BigEndian.Uint32(buf[12:16]),
		cas:          binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// respFrame builds a binary-protocol response frame ready to write back on
// a test pipe.
func respFrame(opcode protocol.Opcode, status protocol.Status, opaque uint32, cas uint64, extras, key, value []byte) []byte {
	h := protocol.Header{
		Opcode:       opcode,
		KeyLength:    uint16(len(key)),
		ExtrasLength: uint8(len(extras)),
		Status:       status,
		BodyLength:   uint32(len(extras) + len(key) + len(value)),
		Opaque:       opaque,
		CAS:          cas,
	}
	buf := make([]byte, protocol.HeaderLen)
	h.PutResponse(buf)
	buf = append(buf, extras...)
	buf = append(buf, key...)
	buf = append(buf, value...)
	return buf
}

// flagsExtras builds the 4-byte Get-family flags extras segment.
func flagsExtras(flags uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, flags)
	return b
}

// responder inspects one incoming request's parsed fields and returns the
// response frame to write back, or nil for a request that expects no reply.
type responder func(h reqHeader, extras, key, value []byte) []byte

// scriptedServer runs the server side of a net.Pipe connection, handing each
// incoming request to the next responder in order. It returns once
// responders is exhausted or the pipe is closed by the client side, so
// tests don't need to explicitly close the server end.
func scriptedServer(conn net.Conn, responders ...responder) {
	for _, respond := range responders {
		h, err := readReqHeader(conn)
		if err != nil {
			return
		}
		body := make([]byte, h.bodyLength)
		if h.bodyLength > 0 {
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
		}
		extras := body[:h.extrasLength]
		key := body[h.extrasLength : uint32(h.extrasLength)+uint32(h.keyLength)]
		value := body[uint32(h.extrasLength)+uint32(h.keyLength):]

		resp := respond(h, extras, key, value)
		if resp == nil {
			continue
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

// echo builds a responder that always replies with the given status/extras/
// key/value, ignoring the request's own fields beyond opcode/opaque/cas
// echoing.
func echo(status protocol.Status, extras, key, value []byte) responder {
	return func(h reqHeader, _, _, _ []byte) []byte {
		return respFrame(h.opcode, status, h.opaque, h.cas, extras, key, value)
	}
}

// noReply builds a responder for a quiet command that succeeded: no frame
// is written back.
func noReply() responder {
	return func(reqHeader, []byte, []byte, []byte) []byte { return nil }
}

// serveLoop runs respond against every incoming request on conn until the
// pipe errors out (the client side closed or failed). Used where a test
// doesn't know in advance how many requests a given server will receive,
// e.g. multi-key fan-out sharded by hash.
func serveLoop(conn net.Conn, respond responder) {
	for {
		h, err := readReqHeader(conn)
		if err != nil {
			return
		}
		body := make([]byte, h.bodyLength)
		if h.bodyLength > 0 {
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
		}
		extras := body[:h.extrasLength]
		key := body[h.extrasLength : uint32(h.extrasLength)+uint32(h.keyLength)]
		value := body[uint32(h.extrasLength)+uint32(h.keyLength):]

		resp := respond(h, extras, key, value)
		if resp == nil {
			continue
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

// mockDialer returns a Config.DialFunc that hands a fresh net.Pipe to
// handle for every dialed address, running handle on its own goroutine.
// Tests never need a real listening socket.
//
// Using net.Pipe matters here, not just convenience: Connection starts its
// read loop as soon as it's constructed, before the caller has sent
// anything. A pre-loaded buffer-backed conn would let that read loop
// consume scripted response bytes before the matching request reaches the
// in-flight FIFO. net.Pipe's synchronous rendezvous means the fake server's
// read of the request can't complete until Send has already pushed onto the
// FIFO and written the bytes, so the race can't happen.
func mockDialer(handle func(server net.Conn)) DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		client, server := net.Pipe()
		go handle(server)
		return client, nil
	}
}
