package playback

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	pcmMsgChunk = iota
	pcmMsgEOF
	pcmMsgFail
	pcmMsgDone
)

type pcmMsg struct {
	kind  int
	chunk []byte
	err   error
}

// pcmSession is one raw-PCM playback. All scheduling and state transitions
// run on a single event loop; the node's asynchronous completion callbacks
// post messages back to that loop instead of mutating shared counters.
type pcmSession struct {
	node Node
	out  *outcome

	msgs   chan pcmMsg
	ctx    context.Context
	cancel context.CancelFunc
}

func newPCMSession(ctx context.Context, node Node) *pcmSession {
	sctx, cancel := context.WithCancel(ctx)
	s := &pcmSession{
		node:   node,
		out:    newOutcome(),
		msgs:   make(chan pcmMsg),
		ctx:    sctx,
		cancel: cancel,
	}
	go s.run()
	return s
}

func (s *pcmSession) run() {
	pending := 0
	inputFinished := false

	for {
		select {
		case m := <-s.msgs:
			switch m.kind {
			case pcmMsgChunk:
				pending += s.schedule(m.chunk)
			case pcmMsgEOF:
				inputFinished = true
				if pending == 0 {
					s.finish(Result{Finished: true})
				}
			case pcmMsgFail:
				log.Error().Err(m.err).Msg("PCM stream failed")
				s.finish(Result{Finished: false})
			case pcmMsgDone:
				if pending > 0 {
					pending--
				}
				if inputFinished && pending == 0 {
					s.finish(Result{Finished: true})
				}
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// schedule converts chunk bytes into a sample buffer and queues it on the
// node, returning how many buffers were scheduled. Bytes are interpreted as
// little-endian 16-bit mono samples; a trailing odd byte is dropped and a
// chunk with no complete frame schedules nothing at all.
func (s *pcmSession) schedule(chunk []byte) int {
	frameCount := len(chunk) / 2
	if frameCount == 0 {
		return 0
	}
	samples := make([]int16, frameCount)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(chunk[2*i:]))
	}

	if !s.node.Playing() {
		if err := s.node.Play(); err != nil {
			log.Error().Err(err).Msg("PCM node start failed")
			s.finish(Result{Finished: false})
			return 0
		}
	}
	s.node.ScheduleBuffer(samples, func() {
		s.post(pcmMsg{kind: pcmMsgDone})
	})
	return 1
}

func (s *pcmSession) post(m pcmMsg) {
	select {
	case s.msgs <- m:
	case <-s.ctx.Done():
	}
}

// Append implements chunkSink.
func (s *pcmSession) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.post(pcmMsg{kind: pcmMsgChunk, chunk: chunk})
}

// FinishInput implements chunkSink.
func (s *pcmSession) FinishInput() {
	s.post(pcmMsg{kind: pcmMsgEOF})
}

// Fail implements chunkSink.
func (s *pcmSession) Fail(err error) {
	s.post(pcmMsg{kind: pcmMsgFail, err: err})
}

// stopAndFinish captures the node position, force-stops rendering and
// delivers the interrupted result.
func (s *pcmSession) stopAndFinish() *float64 {
	var pos *float64
	if seconds, ok := s.node.Position(); ok {
		pos = &seconds
	}
	s.node.Stop()
	s.finish(Result{Finished: false, InterruptedAt: pos})
	return pos
}

func (s *pcmSession) wait(ctx context.Context) Result {
	select {
	case r := <-s.out.ch:
		return r
	case <-ctx.Done():
		s.stopAndFinish()
		return <-s.out.ch
	}
}

func (s *pcmSession) finish(r Result) {
	if !s.out.deliver(r) {
		return
	}
	s.cancel()
}

// PCMPlayer owns the single active raw-PCM session plus the playback graph,
// which is kept across sessions so consecutive streams with the same sample
// rate replay without an audible rebuild.
type PCMPlayer struct {
	newNode NodeFactory

	mu       sync.Mutex
	node     Node
	nodeRate float64
	active   *pcmSession
}

// NewPCMPlayer creates a player that builds playback nodes with newNode.
func NewPCMPlayer(newNode NodeFactory) *PCMPlayer {
	return &PCMPlayer{newNode: newNode}
}

// Play renders source as 16-bit mono PCM at the given sample rate and
// returns the session's single result. An invalid sample rate or a graph
// build failure returns Finished=false immediately.
func (p *PCMPlayer) Play(ctx context.Context, source ChunkSource, sampleRate float64) Result {
	p.Stop()

	if sampleRate <= 0 {
		return Result{Finished: false}
	}
	node, err := p.configure(sampleRate)
	if err != nil {
		log.Error().Err(err).Float64("sample_rate", sampleRate).Msg("PCM graph build failed")
		return Result{Finished: false}
	}

	s := newPCMSession(ctx, node)
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

// configure reuses the existing node when the sample rate is unchanged,
// otherwise tears the graph down and rebuilds it for the new rate.
func (p *PCMPlayer) configure(sampleRate float64) (Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.node != nil && p.nodeRate == sampleRate {
		return p.node, nil
	}
	if p.node != nil {
		p.node.Stop()
		p.node.Close()
		p.node = nil
	}
	node, err := p.newNode(sampleRate)
	if err != nil {
		return nil, err
	}
	p.node = node
	p.nodeRate = sampleRate
	return node, nil
}

// Stop interrupts the active session and returns the interruption position,
// nil when idle.
func (p *PCMPlayer) Stop() *float64 {
	p.mu.Lock()
	s := p.active
	p.active = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.stopAndFinish()
}

// Close releases the retained playback graph.
func (p *PCMPlayer) Close() {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.node != nil {
		p.node.Stop()
		p.node.Close()
		p.node = nil
		p.nodeRate = 0
	}
}
