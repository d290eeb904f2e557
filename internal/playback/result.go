// Package playback turns a live stream of encoded audio chunks into sound.
//
// Two pipelines exist: a compressed path that parses an MPEG bitstream into
// packets and feeds a buffered output device, and a PCM path that schedules
// raw sample buffers directly onto a player node. Both deliver exactly one
// Result per play call, whether the stream finishes, fails, or is stopped.
package playback

import "sync"

// Result is the outcome of one play call. Finished is true when the stream
// reached its natural end and all buffered audio was rendered. When playback
// was interrupted, InterruptedAt holds the best-effort device position in
// seconds, or nil if no position could be determined.
type Result struct {
	Finished      bool
	InterruptedAt *float64
}

// outcome is a single-shot result cell. The first deliver wins; later
// attempts are no-ops. This makes the finish path idempotent under racing
// device callbacks, caller stops and stream errors.
type outcome struct {
	mu        sync.Mutex
	delivered bool
	ch        chan Result
}

func newOutcome() *outcome {
	return &outcome{ch: make(chan Result, 1)}
}

// deliver resolves the cell. Returns true if this call was the first.
func (o *outcome) deliver(r Result) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.delivered {
		return false
	}
	o.delivered = true
	o.ch <- r
	return true
}

// wait blocks until the result is delivered.
func (o *outcome) wait() Result {
	return <-o.ch
}
