package playback

import "context"

const (
	// BufferCount is the number of hardware buffers shared per session.
	BufferCount = 3
	// BufferSize is the capacity of each hardware buffer in bytes.
	BufferSize = 32 * 1024
)

// Buffer is a fixed-capacity audio buffer. At any instant it is owned by
// exactly one of: the free pool, the decoder filling it, or the output
// device rendering it.
type Buffer struct {
	data []byte
	used int
}

// Capacity returns the fixed byte capacity of the buffer.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Len returns how many bytes are currently filled.
func (b *Buffer) Len() int {
	return b.used
}

// Bytes returns the filled portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.used]
}

// Append copies p into the buffer. Returns false without writing when p
// does not fit in the remaining capacity.
func (b *Buffer) Append(p []byte) bool {
	if b.used+len(p) > len(b.data) {
		return false
	}
	copy(b.data[b.used:], p)
	b.used += len(p)
	return true
}

// Reset empties the buffer for reuse.
func (b *Buffer) Reset() {
	b.used = 0
}

// BufferPool is a fixed pool of reusable buffers. Acquiring blocks when the
// pool is empty, which is the backpressure mechanism tying the network
// arrival rate to the device drain rate.
type BufferPool struct {
	free chan *Buffer
}

// NewBufferPool creates a pool of count buffers of size bytes each.
func NewBufferPool(count, size int) *BufferPool {
	pool := &BufferPool{free: make(chan *Buffer, count)}
	for i := 0; i < count; i++ {
		pool.free <- &Buffer{data: make([]byte, size)}
	}
	return pool
}

// Acquire takes a free buffer, blocking until one is released or the
// context is cancelled.
func (p *BufferPool) Acquire(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-p.free:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release resets the buffer and returns it to the pool.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil {
		return
	}
	b.Reset()
	select {
	case p.free <- b:
	default:
		// A buffer that was never acquired from this pool; drop it.
	}
}

// Free returns how many buffers are currently available.
func (p *BufferPool) Free() int {
	return len(p.free)
}

// Size returns the pool capacity.
func (p *BufferPool) Size() int {
	return cap(p.free)
}
