package playback

// Format describes a resolved audio stream: sample rate, channel layout and,
// for compressed streams, the codec configuration blob needed to initialize
// the output device. Created once per stream, immutable afterwards.
type Format struct {
	SampleRate float64
	Channels   int
	Cookie     []byte
}

// DeviceListener receives asynchronous events from an output device. Calls
// may arrive from the device's own rendering context, concurrently with the
// session feeding it.
type DeviceListener interface {
	// BufferReturned is called when the device has finished rendering a
	// buffer and hands it back for refilling. Return order is not
	// guaranteed to match submission order.
	BufferReturned(b *Buffer)
	// RunningChanged reports rendering state transitions. A change to false
	// after a graceful stop means all enqueued audio has been played.
	RunningChanged(running bool)
	// DeviceFailed reports that the device can no longer render: decoder
	// bring-up failed, the audio backend is unavailable, or rendering broke
	// mid-stream. The device stops accepting buffers before reporting.
	DeviceFailed(err error)
}

// Device is a buffered output queue for compressed audio. Buffers are
// rendered in strict submission order, which is what keeps playback gapless.
type Device interface {
	// Enqueue submits a sealed buffer for rendering. The device owns the
	// buffer until it is handed back via BufferReturned.
	Enqueue(b *Buffer) error
	// Start begins rendering enqueued buffers.
	Start() error
	// Stop halts the device. When immediate is false the device first
	// drains everything already enqueued, then reports RunningChanged(false).
	Stop(immediate bool)
	// Position returns the current render position in seconds. The second
	// return is false when the device has no valid timeline.
	Position() (float64, bool)
	// Close releases the device. No events fire after Close returns.
	Close()
}

// DeviceFactory creates an output device for a discovered stream format.
// The listener must be registered before the factory returns.
type DeviceFactory func(format Format, listener DeviceListener) (Device, error)

// Node is a player for raw PCM sample buffers.
type Node interface {
	// ScheduleBuffer queues mono 16-bit samples for rendering. onDone is
	// invoked asynchronously once the buffer has been fully consumed.
	ScheduleBuffer(samples []int16, onDone func())
	// Play starts the node rendering scheduled buffers.
	Play() error
	// Playing reports whether the node has been started.
	Playing() bool
	// Position returns the render position in seconds, false when unknown.
	Position() (float64, bool)
	// Stop halts rendering immediately and discards scheduled buffers.
	Stop()
	// Close releases the node.
	Close()
}

// NodeFactory creates a PCM player node for the given sample rate.
type NodeFactory func(sampleRate float64) (Node, error)

// ChunkSource is the stream contract the players consume: an ordered
// sequence of byte chunks ending with io.EOF. Any other error is treated as
// an upstream failure and ends the session with Finished=false.
type ChunkSource interface {
	Next() ([]byte, error)
}
