package output

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/steipete/elevenlabskit/internal/playback"
)

// PCMNode renders scheduled 16-bit mono sample buffers through the shared
// speaker. When its queue is empty it emits silence instead of blocking,
// which keeps the audio pipeline flowing between chunk arrivals.
type PCMNode struct {
	sampleRate    float64
	volumePercent int

	mu         sync.Mutex
	queue      []*pcmBuffer
	playing    bool
	started    bool
	closed     bool
	doneFrames int
}

type pcmBuffer struct {
	samples []int16
	offset  int
	onDone  func()
}

// NewNodeFactory returns a playback.NodeFactory producing PCMNodes at the
// given volume.
func NewNodeFactory(volumePercent int) playback.NodeFactory {
	return func(sampleRate float64) (playback.Node, error) {
		if sampleRate <= 0 {
			return nil, fmt.Errorf("invalid sample rate: %v", sampleRate)
		}
		return &PCMNode{sampleRate: sampleRate, volumePercent: volumePercent}, nil
	}
}

// ScheduleBuffer implements playback.Node. The node takes ownership of
// samples; onDone fires asynchronously once the buffer has been rendered.
func (n *PCMNode) ScheduleBuffer(samples []int16, onDone func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		if onDone != nil {
			go onDone()
		}
		return
	}
	n.queue = append(n.queue, &pcmBuffer{samples: samples, onDone: onDone})
}

// Play implements playback.Node.
func (n *PCMNode) Play() error {
	n.mu.Lock()
	if n.playing || n.closed {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	if err := initSpeaker(); err != nil {
		return err
	}

	n.mu.Lock()
	n.playing = true
	n.started = true
	n.mu.Unlock()

	volume := &effects.Volume{
		Streamer: n,
		Base:     2,
		Volume:   percentToExponent(float64(n.volumePercent)),
		Silent:   n.volumePercent == 0,
	}
	speaker.Play(resampled(volume, beep.SampleRate(n.sampleRate)))
	return nil
}

// Playing implements playback.Node.
func (n *PCMNode) Playing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.playing
}

// Position implements playback.Node, reporting rendered frames divided by
// the sample rate. Unknown until the node has been started once.
func (n *PCMNode) Position() (float64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started || n.sampleRate <= 0 {
		return 0, false
	}
	return float64(n.doneFrames) / n.sampleRate, true
}

// Stop implements playback.Node. Rendering halts immediately and scheduled
// buffers are discarded without firing their callbacks.
func (n *PCMNode) Stop() {
	n.mu.Lock()
	wasPlaying := n.playing
	n.playing = false
	n.queue = nil
	n.mu.Unlock()
	if wasPlaying {
		speaker.Clear()
	}
}

// Close implements playback.Node.
func (n *PCMNode) Close() {
	n.Stop()
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

// Stream implements beep.Streamer. Samples are upmixed mono to stereo; an
// empty queue yields silence. Completion callbacks run on their own
// goroutine because Stream is called under the speaker lock.
func (n *PCMNode) Stream(samples [][2]float64) (int, bool) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return 0, false
	}

	var completed []func()
	for i := range samples {
		if !n.playing || len(n.queue) == 0 {
			samples[i] = [2]float64{}
			continue
		}
		buf := n.queue[0]
		value := float64(buf.samples[buf.offset]) / 32768.0
		samples[i] = [2]float64{value, value}
		buf.offset++
		n.doneFrames++
		if buf.offset == len(buf.samples) {
			n.queue = n.queue[1:]
			if buf.onDone != nil {
				completed = append(completed, buf.onDone)
			}
		}
	}
	n.mu.Unlock()

	for _, fn := range completed {
		go fn()
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (n *PCMNode) Err() error {
	return nil
}
