// Package internal holds helpers shared across the module's packages that
// aren't part of its public API.
package internal

import (
	"bytes"
	"sync"
)

// BufferPool recycles *bytes.Buffer instances sized around initialSize.
// Used by the protocol package to avoid a fresh allocation per encoded
// request batch.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool(initialSize int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, initialSize))
			},
		},
	}
}

func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

func (p *BufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	p.pool.Put(buf)
}
