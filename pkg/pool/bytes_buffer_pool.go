// Package pool holds typed wrappers around sync.Pool.
package pool

import (
	"bytes"
	"sync"
)

// BytesBuffer is a pool of reusable *bytes.Buffer, for rendering flush payloads.
type BytesBuffer struct {
	p sync.Pool
}

func NewBytesBuffer() *BytesBuffer {
	return &BytesBuffer{
		p: sync.Pool{
			New: func() interface{} {
				return &bytes.Buffer{}
			},
		},
	}
}

// Get returns an empty buffer.
func (p *BytesBuffer) Get() *bytes.Buffer {
	buffer := p.p.Get().(*bytes.Buffer)
	buffer.Reset()
	return buffer
}

// Put returns b to the pool. b must not be used afterwards.
func (p *BytesBuffer) Put(b *bytes.Buffer) {
	p.p.Put(b)
}
