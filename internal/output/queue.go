package output

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"

	"github.com/steipete/elevenlabskit/internal/playback"
)

var errDeviceStopped = errors.New("output: device stopped")

// QueueDevice renders compressed audio buffers in FIFO order. Enqueued
// buffer bytes are fed through a pipe into the MP3 decoder; the pipe's
// blocking writes tie buffer returns to the decoder's consumption rate,
// which is what paces the upstream backpressure.
type QueueDevice struct {
	listener      playback.DeviceListener
	volumePercent int

	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	pending    chan *playback.Buffer
	done       chan struct{} // closed on immediate stop or failure
	drain      chan struct{} // closed on graceful stop

	doneOnce  sync.Once
	drainOnce sync.Once

	mu       sync.Mutex
	draining bool
	stopped  bool
	counter  *countingStreamer
}

// NewDeviceFactory returns a playback.DeviceFactory producing QueueDevices
// at the given volume.
func NewDeviceFactory(volumePercent int) playback.DeviceFactory {
	return func(format playback.Format, listener playback.DeviceListener) (playback.Device, error) {
		return newQueueDevice(format, listener, volumePercent), nil
	}
}

func newQueueDevice(format playback.Format, listener playback.DeviceListener, volumePercent int) *QueueDevice {
	pipeReader, pipeWriter := io.Pipe()
	d := &QueueDevice{
		listener:      listener,
		volumePercent: volumePercent,
		pipeReader:    pipeReader,
		pipeWriter:    pipeWriter,
		pending:       make(chan *playback.Buffer, playback.BufferCount),
		done:          make(chan struct{}),
		drain:         make(chan struct{}),
	}
	log.Debug().Float64("sample_rate", format.SampleRate).Int("channels", format.Channels).
		Msg("Creating output queue")
	go d.feed()
	return d
}

// feed writes enqueued buffers into the decoder pipe and hands each one
// back once its bytes have been consumed. Closing the pipe writer on exit
// is what signals end of stream to the decoder.
func (d *QueueDevice) feed() {
	defer d.pipeWriter.Close()
	for {
		select {
		case buf := <-d.pending:
			if !d.write(buf) {
				d.returnPending()
				return
			}
		case <-d.done:
			d.returnPending()
			return
		case <-d.drain:
			for {
				select {
				case buf := <-d.pending:
					if !d.write(buf) {
						d.returnPending()
						return
					}
				case <-d.done:
					d.returnPending()
					return
				default:
					return
				}
			}
		}
	}
}

func (d *QueueDevice) write(buf *playback.Buffer) bool {
	_, err := d.pipeWriter.Write(buf.Bytes())
	d.listener.BufferReturned(buf)
	return err == nil
}

// returnPending hands back buffers that will never be rendered.
func (d *QueueDevice) returnPending() {
	for {
		select {
		case buf := <-d.pending:
			d.listener.BufferReturned(buf)
		default:
			return
		}
	}
}

// Enqueue implements playback.Device. The done channel keeps a submission
// racing with an immediate stop from blocking forever.
func (d *QueueDevice) Enqueue(b *playback.Buffer) error {
	d.mu.Lock()
	rejected := d.draining || d.stopped
	d.mu.Unlock()
	if rejected {
		return errDeviceStopped
	}

	select {
	case d.pending <- b:
		return nil
	case <-d.done:
		return errDeviceStopped
	}
}

// Start implements playback.Device. Decoding begins on its own goroutine
// because the decoder blocks until the pipe carries the stream header.
func (d *QueueDevice) Start() error {
	go d.startPlayback()
	return nil
}

func (d *QueueDevice) startPlayback() {
	streamer, format, err := mp3.Decode(d.pipeReader)
	if err != nil {
		d.fail(fmt.Errorf("failed to decode audio stream: %w", err))
		return
	}
	if err := initSpeaker(); err != nil {
		streamer.Close()
		d.fail(err)
		return
	}

	counter := &countingStreamer{
		streamer:   streamer,
		sampleRate: float64(format.SampleRate),
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		streamer.Close()
		return
	}
	d.counter = counter
	d.mu.Unlock()

	volume := &effects.Volume{
		Streamer: resampled(counter, format.SampleRate),
		Base:     2,
		Volume:   percentToExponent(float64(d.volumePercent)),
		Silent:   d.volumePercent == 0,
	}

	d.listener.RunningChanged(true)
	speaker.Play(beep.Seq(volume, beep.Callback(d.finishedPlaying)))
}

// finishedPlaying reports the natural end of the stream. The speaker runs
// callbacks on its render goroutine while holding its own lock, so the
// listener is notified on a fresh goroutine where it may safely call back
// into the speaker.
func (d *QueueDevice) finishedPlaying() {
	go d.listener.RunningChanged(false)
}

// fail marks the device dead after a bring-up error and reports it. The
// session resolves with a failure as soon as the listener hears about it.
// An error caused by a deliberate immediate stop is not reported.
func (d *QueueDevice) fail(err error) {
	d.mu.Lock()
	alreadyStopped := d.stopped
	d.stopped = true
	d.draining = true
	d.mu.Unlock()

	d.doneOnce.Do(func() { close(d.done) })
	d.pipeReader.CloseWithError(err)

	if alreadyStopped {
		return
	}
	log.Error().Err(err).Msg("Audio device failed")
	d.listener.DeviceFailed(err)
}

// Stop implements playback.Device. A graceful stop lets the decoder drain
// everything already enqueued; an immediate stop cuts rendering off and
// returns unplayed buffers.
func (d *QueueDevice) Stop(immediate bool) {
	d.mu.Lock()
	if d.stopped || (d.draining && !immediate) {
		d.mu.Unlock()
		return
	}
	d.draining = true
	if immediate {
		d.stopped = true
	}
	started := d.counter != nil
	d.mu.Unlock()

	if !immediate {
		d.drainOnce.Do(func() { close(d.drain) })
		return
	}

	d.doneOnce.Do(func() { close(d.done) })
	d.pipeReader.CloseWithError(errDeviceStopped)
	if started {
		speaker.Clear()
	}
}

// Position implements playback.Device, reporting rendered frames divided by
// the decoded sample rate.
func (d *QueueDevice) Position() (float64, bool) {
	d.mu.Lock()
	counter := d.counter
	d.mu.Unlock()
	if counter == nil {
		return 0, false
	}
	return counter.position(), true
}

// Close implements playback.Device.
func (d *QueueDevice) Close() {
	d.Stop(true)
}

// countingStreamer counts rendered frames so the device can report a
// truthful interruption position.
type countingStreamer struct {
	streamer   beep.StreamSeekCloser
	sampleRate float64

	mu     sync.Mutex
	frames int
}

func (c *countingStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := c.streamer.Stream(samples)
	c.mu.Lock()
	c.frames += n
	c.mu.Unlock()
	return n, ok
}

func (c *countingStreamer) Err() error {
	return c.streamer.Err()
}

func (c *countingStreamer) position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleRate <= 0 {
		return 0
	}
	return float64(c.frames) / c.sampleRate
}
