package capture

import (
	"sync"
)

// ChunkBuffer accumulates captured audio chunks in arrival order.
// Accrual is explicitly decoupled from finalization: Append collects,
// Finalize concatenates. A buffer finalizes once; later appends are
// dropped.
type ChunkBuffer struct {
	mu        sync.Mutex
	chunks    [][]byte
	size      int
	finalized bool
	result    []byte
}

// NewChunkBuffer creates an empty chunk buffer.
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append adds a chunk to the buffer. Empty chunks and appends after
// finalization are ignored. Returns whether the chunk was kept.
func (b *ChunkBuffer) Append(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return false
	}

	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	return true
}

// Count returns the number of chunks accumulated so far.
func (b *ChunkBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Size returns the total number of bytes accumulated so far.
func (b *ChunkBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Finalize concatenates all chunks preserving arrival order and seals
// the buffer. A zero-chunk buffer yields a valid empty slice. Calling
// Finalize again returns the same bytes.
func (b *ChunkBuffer) Finalize() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return b.result
	}
	b.finalized = true

	b.result = make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		b.result = append(b.result, chunk...)
	}
	b.chunks = nil
	return b.result
}
