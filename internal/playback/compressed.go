package playback

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/steipete/elevenlabskit/internal/mpeg"
)

// chunkSink is the push interface the stream pump drives.
type chunkSink interface {
	Append(chunk []byte)
	FinishInput()
	Fail(err error)
}

// pump forwards chunks from the source into the sink until the stream ends
// or errors.
func pump(source ChunkSource, sink chunkSink) {
	for {
		chunk, err := source.Next()
		if err == io.EOF {
			sink.FinishInput()
			return
		}
		if err != nil {
			sink.Fail(err)
			return
		}
		sink.Append(chunk)
	}
}

// session is one compressed-stream playback. All parsing and buffer
// bookkeeping runs on a single worker goroutine; network chunks are handed
// off to it rather than processed inline. Device events arrive from the
// device's own context and are synchronized through the pool and the mutex.
type session struct {
	newDevice DeviceFactory
	pool      *BufferPool
	out       *outcome

	work   chan func()
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	device        Device
	inputFinished bool

	// Worker-only state.
	parser         *mpeg.Parser
	current        *Buffer
	startRequested bool
}

func newSession(ctx context.Context, newDevice DeviceFactory, pool *BufferPool) *session {
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		newDevice: newDevice,
		pool:      pool,
		out:       newOutcome(),
		work:      make(chan func()),
		ctx:       sctx,
		cancel:    cancel,
	}
	s.parser = mpeg.NewParser(s.handleFormat, s.handlePackets)
	go s.run()
	return s
}

func (s *session) run() {
	for {
		select {
		case fn := <-s.work:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

// post hands work to the serial worker. It blocks until the worker accepts,
// so a worker stalled waiting for a free buffer stalls the producer too.
func (s *session) post(fn func()) {
	select {
	case s.work <- fn:
	case <-s.ctx.Done():
	}
}

// Append hands a chunk of the compressed stream to the parse worker.
func (s *session) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.post(func() {
		if err := s.parser.Feed(chunk); err != nil {
			s.Fail(err)
		}
	})
}

// FinishInput marks the natural end of the stream. Any partially filled
// buffer is flushed and the device drains what is enqueued before stopping.
func (s *session) FinishInput() {
	s.post(func() {
		s.mu.Lock()
		s.inputFinished = true
		device := s.device
		s.mu.Unlock()

		if device == nil {
			// The stream ended before a format was ever discovered.
			s.finish(Result{Finished: false})
			return
		}
		s.submitCurrent()
		device.Stop(false)
	})
}

// Fail ends the session after a parse or upstream error.
func (s *session) Fail(err error) {
	log.Error().Err(err).Msg("Audio stream failed")
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	if device != nil {
		device.Stop(true)
	}
	s.finish(Result{Finished: false})
}

// Stop requests an immediate device stop and returns the render position at
// the moment of interruption, nil when no device was ever created.
func (s *session) Stop() *float64 {
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	if device == nil {
		return nil
	}
	var pos *float64
	if seconds, ok := device.Position(); ok {
		pos = &seconds
	}
	device.Stop(true)
	return pos
}

func (s *session) wait(ctx context.Context) Result {
	select {
	case r := <-s.out.ch:
		return r
	case <-ctx.Done():
		pos := s.Stop()
		s.finish(Result{Finished: false, InterruptedAt: pos})
		return <-s.out.ch
	}
}

// handleFormat runs on the worker when the parser discovers the stream
// format; it creates the output device for that format.
func (s *session) handleFormat(f mpeg.Format) {
	format := Format{
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		Cookie:     s.parser.Cookie(),
	}
	device, err := s.newDevice(format, s)
	if err != nil {
		log.Error().Err(err).Msg("Output device creation failed")
		s.finish(Result{Finished: false})
		return
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
}

// handlePackets runs on the worker with each batch of parsed frames.
func (s *session) handlePackets(packets []mpeg.Packet) {
	if s.currentDevice() == nil {
		return
	}
	for _, pkt := range packets {
		s.appendPacket(pkt.Data)
	}
}

// appendEqualDivision splits a byte range into packetCount equal packets.
// Used when a parser reports data without per-packet boundaries.
func (s *session) appendEqualDivision(data []byte, packetCount int) {
	if packetCount <= 0 || s.currentDevice() == nil {
		return
	}
	size := len(data) / packetCount
	if size == 0 {
		return
	}
	for i := 0; i < packetCount; i++ {
		s.appendPacket(data[i*size : (i+1)*size])
	}
}

func (s *session) appendPacket(data []byte) {
	if len(data) > BufferSize {
		// Degenerate oversized packet; drop it rather than fail the stream.
		log.Debug().Int("bytes", len(data)).Msg("Dropping oversized audio packet")
		return
	}
	if s.current != nil && s.current.Len()+len(data) > s.current.Capacity() {
		s.submitCurrent()
	}
	if s.current == nil {
		buf, err := s.pool.Acquire(s.ctx)
		if err != nil {
			return
		}
		s.current = buf
	}
	s.current.Append(data)
}

// submitCurrent seals the filling buffer and enqueues it. The first
// submission also starts the device, so audio begins as soon as one
// buffer's worth of packets exists.
func (s *session) submitCurrent() {
	device := s.currentDevice()
	if device == nil || s.current == nil || s.current.Len() == 0 {
		return
	}
	buf := s.current
	s.current = nil

	if err := device.Enqueue(buf); err != nil {
		log.Error().Err(err).Msg("Buffer enqueue failed")
		s.pool.Release(buf)
		return
	}
	if !s.startRequested {
		s.startRequested = true
		if err := device.Start(); err != nil {
			log.Error().Err(err).Msg("Device start failed")
		}
	}
}

func (s *session) currentDevice() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// BufferReturned implements DeviceListener. The device hands buffers back
// from its rendering context; releasing to the pool wakes a blocked worker.
func (s *session) BufferReturned(b *Buffer) {
	s.pool.Release(b)
}

// DeviceFailed implements DeviceListener. A device that cannot render ends
// the session immediately; the teardown closes the dead device.
func (s *session) DeviceFailed(err error) {
	log.Error().Err(err).Msg("Output device failed")
	s.finish(Result{Finished: false})
}

// RunningChanged implements DeviceListener. The device reporting it has
// stopped after the input already ended is the success terminal.
func (s *session) RunningChanged(running bool) {
	if running {
		return
	}
	s.mu.Lock()
	finished := s.inputFinished
	s.mu.Unlock()
	if finished {
		s.finish(Result{Finished: true})
	}
}

func (s *session) finish(r Result) {
	if !s.out.deliver(r) {
		return
	}
	s.teardown()
}

// teardown runs exactly once per session, after the result is delivered.
func (s *session) teardown() {
	s.cancel()
	s.mu.Lock()
	device := s.device
	s.device = nil
	s.mu.Unlock()
	if device != nil {
		device.Close()
	}
}

// StreamPlayer owns the single active compressed playback session. Starting
// a new play interrupts any prior session first; the newest request wins.
type StreamPlayer struct {
	newDevice DeviceFactory
	mu        sync.Mutex
	active    *session
}

// NewStreamPlayer creates a player that builds output devices with newDevice.
func NewStreamPlayer(newDevice DeviceFactory) *StreamPlayer {
	return &StreamPlayer{newDevice: newDevice}
}

// Play consumes source until it ends, errors, or is stopped, and returns
// the session's single result. It never returns an error; failures surface
// as Finished=false.
func (p *StreamPlayer) Play(ctx context.Context, source ChunkSource) Result {
	p.Stop()

	s := newSession(ctx, p.newDevice, NewBufferPool(BufferCount, BufferSize))
	p.mu.Lock()
	p.active = s
	p.mu.Unlock()

	go pump(source, s)

	r := s.wait(ctx)
	p.mu.Lock()
	if p.active == s {
		p.active = nil
	}
	p.mu.Unlock()
	return r
}

// Stop interrupts the active session and returns the interruption position,
// nil when idle.
func (p *StreamPlayer) Stop() *float64 {
	p.mu.Lock()
	s := p.active
	p.active = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	pos := s.Stop()
	s.finish(Result{Finished: false, InterruptedAt: pos})
	return pos
}
