package playback

import (
	"context"
	"testing"
	"time"
)

func TestBufferAppendAndOverflow(t *testing.T) {
	b := &Buffer{data: make([]byte, 8)}

	if !b.Append([]byte{1, 2, 3}) {
		t.Fatal("Append within capacity should succeed")
	}
	if !b.Append([]byte{4, 5, 6, 7, 8}) {
		t.Fatal("Append filling the buffer exactly should succeed")
	}
	if b.Append([]byte{9}) {
		t.Error("Append past capacity should fail")
	}
	if b.Len() != 8 {
		t.Errorf("Len() = %d, want 8", b.Len())
	}

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", b.Len())
	}
	if b.Capacity() != 8 {
		t.Errorf("Capacity() after Reset = %d, want 8", b.Capacity())
	}
}

func TestBufferPoolBounds(t *testing.T) {
	pool := NewBufferPool(3, 16)
	ctx := context.Background()

	var buffers []*Buffer
	for i := 0; i < 3; i++ {
		b, err := pool.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		buffers = append(buffers, b)
	}
	if pool.Free() != 0 {
		t.Errorf("Free() = %d, want 0", pool.Free())
	}

	// A fourth acquire must block until a buffer is released.
	acquired := make(chan *Buffer)
	go func() {
		b, err := pool.Acquire(ctx)
		if err != nil {
			return
		}
		acquired <- b
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire should block on an exhausted pool")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(buffers[0])
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not unblock after Release")
	}
}

func TestBufferPoolAcquireCancelled(t *testing.T) {
	pool := NewBufferPool(1, 16)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := pool.Acquire(ctx); err != nil {
		t.Fatalf("First Acquire failed: %v", err)
	}

	cancel()
	if _, err := pool.Acquire(ctx); err == nil {
		t.Error("Acquire on a cancelled context should fail")
	}
}

func TestBufferPoolReleaseResets(t *testing.T) {
	pool := NewBufferPool(1, 16)
	b, _ := pool.Acquire(context.Background())
	b.Append([]byte{1, 2, 3})

	pool.Release(b)

	b, _ = pool.Acquire(context.Background())
	if b.Len() != 0 {
		t.Errorf("Released buffer should come back empty, Len() = %d", b.Len())
	}
}
