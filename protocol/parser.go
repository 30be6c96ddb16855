package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// Correlator is the per-connection in-flight FIFO the Decoder demultiplexes
// responses against. It is implemented by the connection type in the root
// package (spec.md §4.D, "Request Correlator"); the Decoder only needs to
// peek the head's expected opcode/opaque/quietness and to signal completion.
type Correlator interface {
	// Head returns the oldest in-flight request's opcode, opaque token, and
	// whether it is a quiet command. ok is false if the FIFO is empty.
	Head() (opcode Opcode, opaque uint32, quiet bool, ok bool)

	// Deliver completes the oldest in-flight request with resp and pops it
	// from the FIFO iff pop is true (false only for non-terminal Stat
	// frames, which must stay at the head awaiting the terminator).
	Deliver(resp *Response, pop bool)

	// DeliverNoReply completes the oldest in-flight request as a successful
	// no-reply and pops it unconditionally (spec.md §4.C NO_REPLY state).
	DeliverNoReply()
}

// ErrEmptyCorrelator is returned when a response frame arrives but the
// connection's in-flight FIFO has nothing queued for it.
var ErrEmptyCorrelator = errors.New("protocol: response received with no in-flight request")

// Decoder parses one response frame at a time from r, demultiplexing each
// onto correlator. Callers run DecodeNext in a loop on a dedicated
// per-connection read goroutine; state that would otherwise need explicit
// suspend/resume (spec.md §4.C, §9) is simply the Go call stack's local
// variables between iterations, since each call blocks for exactly one
// frame's worth of bytes.
type Decoder struct {
	headerBuf [HeaderLen]byte
}

// DecodeNext reads and dispatches exactly one response frame, including any
// number of NO_REPLY skips along the way (spec.md §4.C's READ_HEADER →
// NO_REPLY → READ_HEADER loop). It returns io.EOF (or the underlying read
// error) if the connection is closed before a header arrives, the underlying
// read error if it closes mid-frame, and ErrEmptyCorrelator if a frame
// arrives with nothing in flight; any other error is a protocol-level error
// satisfying ErrorWithConnectionState.
func (d *Decoder) DecodeNext(r io.Reader, correlator Correlator) error {
	if _, err := io.ReadFull(r, d.headerBuf[:]); err != nil {
		return err
	}
	h, err := ParseResponseHeader(d.headerBuf[:])
	if err != nil {
		return &FramingError{Message: err.Error()}
	}
	if h.Magic != RespMagic {
		return &FramingError{Message: "bad response magic"}
	}

	// The header just parsed is the only one we have: a NO_REPLY skip pops
	// the stale quiet head and re-checks the SAME header against the new
	// head, rather than fetching fresh bytes for it (spec.md §4.C/§9).
	for {
		expectedOpcode, expectedOpaque, quiet, ok := correlator.Head()
		if !ok {
			return ErrEmptyCorrelator
		}

		if h.Opcode != expectedOpcode {
			if quiet {
				correlator.DeliverNoReply()
				continue
			}
			return &ProtocolMismatchError{Expected: expectedOpcode, Got: h.Opcode}
		}
		if quiet && h.Opaque != expectedOpaque {
			correlator.DeliverNoReply()
			continue
		}
		break
	}

	resp, err := d.readBody(r, h)
	if err != nil {
		return err
	}
	pop := terminatesStatSequence(h.Opcode, len(resp.Key))
	correlator.Deliver(resp, pop)
	return nil
}

func (d *Decoder) readBody(r io.Reader, h Header) (*Response, error) {
	valueLen := h.ValueLength()
	if valueLen < 0 {
		return nil, &FramingError{Message: "total body length shorter than key+extras"}
	}

	resp := &Response{
		Opcode: h.Opcode,
		Status: h.Status,
		Opaque: h.Opaque,
		CAS:    h.CAS,
	}

	// READ_EXTRAS
	if h.ExtrasLength > 0 {
		extras := make([]byte, h.ExtrasLength)
		if _, err := io.ReadFull(r, extras); err != nil {
			return nil, err
		}
		if h.ExtrasLength == 4 {
			resp.Flags = binary.BigEndian.Uint32(extras)
		}
	}

	// READ_KEY
	if h.KeyLength > 0 {
		key := make([]byte, h.KeyLength)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, err
		}
		resp.Key = key
	}

	// READ_VALUE
	if valueLen > 0 {
		if !h.Status.IsError() {
			value := make([]byte, valueLen)
			if _, err := io.ReadFull(r, value); err != nil {
				return nil, err
			}
			resp.Value = value
		} else if _, err := io.CopyN(io.Discard, r, int64(valueLen)); err != nil {
			return nil, err
		}
	}

	return resp, nil
}
