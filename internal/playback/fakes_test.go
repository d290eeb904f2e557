package playback

import (
	"bytes"
	"io"
	"sync"
)

// fakeDevice implements Device with an in-memory FIFO. Buffers stay held
// until drain or a stop returns them, which lets tests observe backpressure.
type fakeDevice struct {
	mu        sync.Mutex
	listener  DeviceListener
	format    Format
	held      []*Buffer
	rendered  []byte
	started   bool
	stopped   bool
	immediate bool
	closed    bool
	autoDrain bool
	startErr  error
	position  float64
	posValid  bool
}

func newFakeDevice(format Format, listener DeviceListener) *fakeDevice {
	return &fakeDevice{format: format, listener: listener}
}

func (d *fakeDevice) Enqueue(b *Buffer) error {
	d.mu.Lock()
	d.rendered = append(d.rendered, b.Bytes()...)
	d.held = append(d.held, b)
	auto := d.autoDrain
	d.mu.Unlock()
	if auto {
		d.drain()
	}
	return nil
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	startErr := d.startErr
	listener := d.listener
	if startErr == nil {
		d.started = true
	}
	d.mu.Unlock()
	if startErr != nil {
		// Real devices discover bring-up failures asynchronously.
		go listener.DeviceFailed(startErr)
		return startErr
	}
	return nil
}

func (d *fakeDevice) Stop(immediate bool) {
	d.mu.Lock()
	d.stopped = true
	d.immediate = immediate
	listener := d.listener
	d.mu.Unlock()
	d.drain()
	if listener != nil {
		listener.RunningChanged(false)
	}
}

func (d *fakeDevice) Position() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, d.posValid
}

func (d *fakeDevice) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// drain returns all held buffers to the listener.
func (d *fakeDevice) drain() {
	d.mu.Lock()
	held := d.held
	d.held = nil
	listener := d.listener
	d.mu.Unlock()
	for _, b := range held {
		listener.BufferReturned(b)
	}
}

func (d *fakeDevice) heldCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.held)
}

func (d *fakeDevice) renderedBytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.rendered...)
}

// fakeNode implements Node, recording scheduled sample buffers. With
// autoComplete set, completion callbacks fire asynchronously as the real
// node's do.
type fakeNode struct {
	mu           sync.Mutex
	rate         float64
	playing      bool
	stopped      bool
	closed       bool
	autoComplete bool
	scheduled    [][]int16
	pendingDone  []func()
	doneFrames   int
	posValid     bool
}

func (n *fakeNode) ScheduleBuffer(samples []int16, onDone func()) {
	n.mu.Lock()
	n.scheduled = append(n.scheduled, samples)
	auto := n.autoComplete
	if !auto {
		n.pendingDone = append(n.pendingDone, onDone)
	}
	n.mu.Unlock()
	if auto {
		go func() {
			n.mu.Lock()
			n.doneFrames += len(samples)
			n.mu.Unlock()
			onDone()
		}()
	}
}

func (n *fakeNode) Play() error {
	n.mu.Lock()
	n.playing = true
	n.mu.Unlock()
	return nil
}

func (n *fakeNode) Playing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.playing
}

func (n *fakeNode) Position() (float64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.posValid || n.rate <= 0 {
		return 0, false
	}
	return float64(n.doneFrames) / n.rate, true
}

func (n *fakeNode) Stop() {
	n.mu.Lock()
	n.playing = false
	n.stopped = true
	n.pendingDone = nil
	n.mu.Unlock()
}

func (n *fakeNode) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

// completeAll fires every pending completion callback in order.
func (n *fakeNode) completeAll() {
	n.mu.Lock()
	done := n.pendingDone
	n.pendingDone = nil
	for _, s := range n.scheduled {
		n.doneFrames += len(s)
	}
	n.mu.Unlock()
	for _, fn := range done {
		fn()
	}
}

func (n *fakeNode) scheduledFrames() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, s := range n.scheduled {
		total += len(s)
	}
	return total
}

func (n *fakeNode) bufferCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.scheduled)
}

// sliceSource serves a fixed list of chunks, then io.EOF forever.
type sliceSource struct {
	chunks [][]byte
	err    error // returned after the chunks instead of io.EOF
	next   int
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.next < len(s.chunks) {
		chunk := s.chunks[s.next]
		s.next++
		return chunk, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// chunked splits data into fixed-size chunks.
func chunked(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// mp3Frame builds a valid MPEG-1 Layer III frame (417 bytes at 128 kbit/s,
// 44.1 kHz stereo).
func mp3Frame(fill byte) []byte {
	frame := bytes.Repeat([]byte{fill}, 417)
	frame[0] = 0xFF
	frame[1] = 0xFB
	frame[2] = 0x90
	frame[3] = 0x00
	return frame
}

func mp3Frames(count int) []byte {
	var data []byte
	for i := 0; i < count; i++ {
		data = append(data, mp3Frame(byte(i))...)
	}
	return data
}
