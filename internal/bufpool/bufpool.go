// Package bufpool provides a fixed-size byte-slice pool for the Mux engine's
// chunked outbound writes, avoiding a per-write allocation for the common
// 8 KiB slice size.
package bufpool

import "sync"

// ChunkSize is the maximum size of one chunked write handed to a socket
// writer. Payloads larger than this are split across multiple Get/Put cycles.
const ChunkSize = 8 * 1024

// Pool is a generic wrapper around sync.Pool, specialized here to hand out
// zero-length, ChunkSize-capacity byte slices.
type Pool[T any] struct {
	internal sync.Pool
}

// New creates a Pool whose items are produced by newFn when the pool is
// empty.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{
		internal: sync.Pool{
			New: func() any {
				return newFn()
			},
		},
	}
}

// Get retrieves an item from the pool, creating one via newFn if empty.
func (p *Pool[T]) Get() T {
	return p.internal.Get().(T)
}

// Put returns an item to the pool for reuse.
func (p *Pool[T]) Put(item T) {
	p.internal.Put(item)
}

// Chunks is the package-wide pool of ChunkSize-capacity byte buffers used
// for Mux chunked writes.
var Chunks = New(func() []byte {
	return make([]byte, 0, ChunkSize)
})

// GetChunk returns a zero-length, ChunkSize-capacity buffer from the pool.
func GetChunk() []byte {
	return Chunks.Get()[:0]
}

// PutChunk returns buf to the pool. Buffers whose capacity has grown past
// ChunkSize are dropped instead of pooled, so a rare oversized write doesn't
// permanently inflate pooled memory.
func PutChunk(buf []byte) {
	if cap(buf) > ChunkSize {
		return
	}
	Chunks.Put(buf)
}

// Split divides data into chunks no larger than ChunkSize, copying into
// pooled buffers. The caller must PutChunk each returned slice once it has
// been written out.
func Split(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := len(data)
		if n > ChunkSize {
			n = ChunkSize
		}
		buf := GetChunk()
		buf = append(buf, data[:n]...)
		chunks = append(chunks, buf)
		data = data[n:]
	}
	return chunks
}
