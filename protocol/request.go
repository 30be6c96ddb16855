package protocol

import (
	"bytes"
	"fmt"
	"io"
	"net"

	"github.com/memcachex/memcache/internal"
)

// bufPool recycles the contiguous buffers backing single-allocation batches
// (spec.md §4.C). Sized for a handful of small requests; Grow handles
// anything larger without a second round trip through the pool.
var bufPool = internal.NewBufferPool(4096)

// Request is a single binary-protocol command to be framed onto a
// connection. Key/Extras/Value are referenced, not copied; callers must not
// mutate them after handing the request to EncodeBatch until the batch has
// been written.
type Request struct {
	Opcode Opcode
	Key    []byte
	Extras []byte
	Value  []byte
	Opaque uint32
	CAS    uint64
}

// Quiet reports whether this request's opcode suppresses the response on
// success (spec.md glossary, "Quiet command").
func (r *Request) Quiet() bool { return r.Opcode.IsQuiet() }

func (r *Request) frameLen() int {
	return HeaderLen + len(r.Extras) + len(r.Key) + len(r.Value)
}

func (r *Request) validate() error {
	if len(r.Key) > MaxKeyLength {
		return fmt.Errorf("protocol: key too long: %d bytes", len(r.Key))
	}
	if len(r.Extras) > 255 {
		return fmt.Errorf("protocol: extras too long: %d bytes", len(r.Extras))
	}
	return nil
}

func (r *Request) header() Header {
	return Header{
		Opcode:       r.Opcode,
		KeyLength:    uint16(len(r.Key)),
		ExtrasLength: uint8(len(r.Extras)),
		BodyLength:   uint32(len(r.Extras) + len(r.Key) + len(r.Value)),
		Opaque:       r.Opaque,
		CAS:          r.CAS,
	}
}

// EncodedBatch is a framed batch of requests ready to be written to a
// connection. It implements io.WriterTo so the caller doesn't need to know
// whether the batch was built in single-allocation or composite mode.
type EncodedBatch interface {
	io.WriterTo

	// Release returns any pooled buffers backing the batch. Safe to call
	// once the batch has been written; a no-op for batches that hold no
	// pooled state.
	Release()
}

// singleAllocBatch holds a contiguous, pooled buffer for the whole batch:
// the "preferred when total size <= 1 MiB" path from spec.md §4.C.
type singleAllocBatch struct {
	buf *bytes.Buffer
}

func (b *singleAllocBatch) WriteTo(w io.Writer) (int64, error) {
	return b.buf.WriteTo(w)
}

func (b *singleAllocBatch) Release() {
	bufPool.Put(b.buf)
}

// compositeBatch holds one small header+extras+key buffer per request, plus
// the caller-owned value buffers appended by reference — the "composite
// mode" from spec.md §4.C that avoids copying large values. Its own buffers
// aren't pooled: they're sized per request rather than around a common
// initial capacity, and the Value segments are caller-owned.
type compositeBatch struct {
	buffers net.Buffers
}

func (b *compositeBatch) WriteTo(w io.Writer) (int64, error) {
	return b.buffers.WriteTo(w)
}

func (b *compositeBatch) Release() {}

// EncodeBatch frames reqs in on-wire order and returns a batch ready to
// write. The on-wire order is the order the caller must also use to push
// requests onto the connection's in-flight FIFO, so that positional
// correlation holds (spec.md §4.C: "each request is pushed onto the target
// connection's in-flight FIFO before the bytes can be observed by a
// response parser").
func EncodeBatch(reqs []*Request) (EncodedBatch, error) {
	total := 0
	for _, r := range reqs {
		if err := r.validate(); err != nil {
			return nil, err
		}
		total += r.frameLen()
	}

	if total <= singleAllocThreshold {
		return encodeSingleAlloc(reqs, total)
	}
	return encodeComposite(reqs)
}

func encodeSingleAlloc(reqs []*Request, total int) (EncodedBatch, error) {
	buf := bufPool.Get()
	buf.Grow(total)
	var hdr [HeaderLen]byte
	for _, r := range reqs {
		h := r.header()
		h.PutRequest(hdr[:])
		buf.Write(hdr[:])
		buf.Write(r.Extras)
		buf.Write(r.Key)
		buf.Write(r.Value)
	}
	return &singleAllocBatch{buf: buf}, nil
}

func encodeComposite(reqs []*Request) (EncodedBatch, error) {
	buffers := make(net.Buffers, 0, len(reqs)*4)
	for _, r := range reqs {
		head := make([]byte, HeaderLen+len(r.Extras)+len(r.Key))
		h := r.header()
		h.PutRequest(head[:HeaderLen])
		copy(head[HeaderLen:], r.Extras)
		copy(head[HeaderLen+len(r.Extras):], r.Key)
		buffers = append(buffers, head)
		if len(r.Value) > 0 {
			buffers = append(buffers, r.Value)
		}
	}
	return &compositeBatch{buffers: buffers}, nil
}
