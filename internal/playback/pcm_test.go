package playback

import (
	"context"
	"errors"
	"testing"
)

func fakeNodeFactory(nodes chan *fakeNode, configure func(*fakeNode)) NodeFactory {
	return func(sampleRate float64) (Node, error) {
		n := &fakeNode{rate: sampleRate}
		if configure != nil {
			configure(n)
		}
		nodes <- n
		return n, nil
	}
}

func TestPCMPlayerFinishesNaturally(t *testing.T) {
	nodes := make(chan *fakeNode, 1)
	player := NewPCMPlayer(fakeNodeFactory(nodes, func(n *fakeNode) {
		n.autoComplete = true
	}))

	source := &sliceSource{chunks: [][]byte{
		make([]byte, 200), // 100 frames
		make([]byte, 64),  // 32 frames
	}}

	result := player.Play(context.Background(), source, 44100)
	if !result.Finished {
		t.Fatal("Play() should finish naturally")
	}

	node := <-nodes
	if node.bufferCount() != 2 {
		t.Errorf("Scheduled %d buffers, want 2", node.bufferCount())
	}
	if node.scheduledFrames() != 132 {
		t.Errorf("Scheduled %d frames, want 132", node.scheduledFrames())
	}
	if !node.Playing() {
		t.Error("Node should still be playing after a natural finish")
	}
}

func TestPCMPlayerDropsOddTrailingByte(t *testing.T) {
	nodes := make(chan *fakeNode, 1)
	player := NewPCMPlayer(fakeNodeFactory(nodes, func(n *fakeNode) {
		n.autoComplete = true
	}))

	source := &sliceSource{chunks: [][]byte{make([]byte, 101)}}

	result := player.Play(context.Background(), source, 24000)
	if !result.Finished {
		t.Fatal("Play() should finish")
	}
	node := <-nodes
	if node.scheduledFrames() != 50 {
		t.Errorf("Scheduled %d frames, want 50 (odd byte dropped)", node.scheduledFrames())
	}
}

func TestPCMPlayerIgnoresDegenerateChunks(t *testing.T) {
	nodes := make(chan *fakeNode, 1)
	player := NewPCMPlayer(fakeNodeFactory(nodes, func(n *fakeNode) {
		n.autoComplete = true
	}))

	source := &sliceSource{chunks: [][]byte{
		{},                // empty chunk
		{0x7F},            // single byte, no complete frame
		make([]byte, 100), // 50 frames
	}}

	result := player.Play(context.Background(), source, 44100)
	if !result.Finished {
		t.Fatal("Degenerate chunks must not change the outcome")
	}
	node := <-nodes
	if node.bufferCount() != 1 {
		t.Errorf("Scheduled %d buffers, want 1 (degenerate chunks ignored)", node.bufferCount())
	}
}

func TestPCMPlayerEmptyStreamFinishes(t *testing.T) {
	nodes := make(chan *fakeNode, 1)
	player := NewPCMPlayer(fakeNodeFactory(nodes, nil))

	result := player.Play(context.Background(), &sliceSource{}, 44100)
	if !result.Finished {
		t.Error("An empty PCM stream finishes with nothing to render")
	}
}

func TestPCMPlayerInvalidSampleRate(t *testing.T) {
	nodes := make(chan *fakeNode, 1)
	player := NewPCMPlayer(fakeNodeFactory(nodes, nil))

	result := player.Play(context.Background(), &sliceSource{}, 0)
	if result.Finished {
		t.Error("Invalid sample rate should fail immediately")
	}
	if result.InterruptedAt != nil {
		t.Error("No position exists for an invalid sample rate")
	}
	if len(nodes) != 0 {
		t.Error("No node should have been built")
	}
}

func TestPCMPlayerNodeFactoryError(t *testing.T) {
	player := NewPCMPlayer(func(float64) (Node, error) {
		return nil, errors.New("no output device")
	})

	result := player.Play(context.Background(), &sliceSource{}, 44100)
	if result.Finished {
		t.Error("Graph build failure should report Finished=false")
	}
}

func TestPCMPlayerStopPositionWithinBound(t *testing.T) {
	nodes := make(chan *fakeNode, 2)
	player := NewPCMPlayer(fakeNodeFactory(nodes, func(n *fakeNode) {
		n.posValid = true
	}))

	const sampleRate = 44100.0
	const frames = 4410

	chunks := make(chan []byte)
	source := &funcSource{next: func() ([]byte, error) {
		chunk, ok := <-chunks
		if !ok {
			return nil, errors.New("closed")
		}
		return chunk, nil
	}}

	results := make(chan Result, 1)
	go func() { results <- player.Play(context.Background(), source, sampleRate) }()

	chunks <- make([]byte, frames*2)
	node := <-nodes
	waitFor(t, func() bool { return node.scheduledFrames() == frames })

	// Render half of what was scheduled before stopping.
	node.mu.Lock()
	node.doneFrames = frames / 2
	node.mu.Unlock()

	pos := player.Stop()
	if pos == nil {
		t.Fatal("Stop() should report a position")
	}
	if *pos < 0 || *pos > frames/sampleRate {
		t.Errorf("Position %v outside [0, %v]", *pos, frames/sampleRate)
	}

	result := <-results
	if result.Finished {
		t.Error("Stopped session should report Finished=false")
	}
	if result.InterruptedAt == nil || *result.InterruptedAt != *pos {
		t.Errorf("InterruptedAt = %v, want %v", result.InterruptedAt, *pos)
	}
	if !node.stopped {
		t.Error("Stop() should force-stop the node")
	}
	close(chunks)
}

func TestPCMPlayerFinishWaitsForPendingBuffers(t *testing.T) {
	nodes := make(chan *fakeNode, 1)
	player := NewPCMPlayer(fakeNodeFactory(nodes, nil))

	source := &sliceSource{chunks: [][]byte{make([]byte, 200)}}

	results := make(chan Result, 1)
	go func() { results <- player.Play(context.Background(), source, 44100) }()

	node := <-nodes
	waitFor(t, func() bool { return node.bufferCount() == 1 })

	select {
	case r := <-results:
		t.Fatalf("Play() returned %+v before the buffer completed", r)
	default:
	}

	node.completeAll()

	result := <-results
	if !result.Finished {
		t.Error("Session should finish once the last buffer completes")
	}
}

func TestPCMPlayerReusesNodeForSameRate(t *testing.T) {
	nodes := make(chan *fakeNode, 2)
	player := NewPCMPlayer(fakeNodeFactory(nodes, func(n *fakeNode) {
		n.autoComplete = true
	}))

	player.Play(context.Background(), &sliceSource{chunks: [][]byte{make([]byte, 100)}}, 44100)
	player.Play(context.Background(), &sliceSource{chunks: [][]byte{make([]byte, 100)}}, 44100)

	if len(nodes) != 1 {
		t.Errorf("Built %d nodes, want 1 (same rate reuses the graph)", len(nodes))
	}
}

func TestPCMPlayerRebuildsNodeForNewRate(t *testing.T) {
	nodes := make(chan *fakeNode, 2)
	player := NewPCMPlayer(fakeNodeFactory(nodes, func(n *fakeNode) {
		n.autoComplete = true
	}))

	player.Play(context.Background(), &sliceSource{chunks: [][]byte{make([]byte, 100)}}, 44100)
	player.Play(context.Background(), &sliceSource{chunks: [][]byte{make([]byte, 100)}}, 24000)

	if len(nodes) != 2 {
		t.Fatalf("Built %d nodes, want 2 (rate change rebuilds the graph)", len(nodes))
	}
	first := <-nodes
	if !first.closed {
		t.Error("Previous node should be closed on rebuild")
	}
}

func TestPCMPlayerStopWhenIdle(t *testing.T) {
	player := NewPCMPlayer(fakeNodeFactory(make(chan *fakeNode, 1), nil))
	if pos := player.Stop(); pos != nil {
		t.Errorf("Stop() when idle = %v, want nil", pos)
	}
}
