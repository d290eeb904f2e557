// Package output implements the real audio devices behind the playback
// pipelines, rendering through the shared beep speaker.
package output

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	// PlaybackSampleRate is the fixed rate the shared speaker runs at. The
	// speaker can only be initialized once per process, so streams at other
	// rates are resampled to it instead of reconfiguring the device.
	PlaybackSampleRate beep.SampleRate = 44100

	SpeakerBufferSize   = 250 * time.Millisecond
	ResampleQuality     = 4
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

var (
	speakerMu    sync.Mutex
	speakerReady bool
)

// initSpeaker initializes the shared speaker on first use.
func initSpeaker() error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if !speakerReady {
		if err := speaker.Init(PlaybackSampleRate, PlaybackSampleRate.N(SpeakerBufferSize)); err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		speakerReady = true
		log.Debug().Msgf("Speaker initialized at %d Hz, buffer: %v", PlaybackSampleRate, SpeakerBufferSize)
	}
	return nil
}

// resampled adapts a streamer from its native sample rate to the speaker
// rate. Streams already at the speaker rate pass through untouched.
func resampled(streamer beep.Streamer, rate beep.SampleRate) beep.Streamer {
	if rate == PlaybackSampleRate {
		return streamer
	}
	return beep.Resample(ResampleQuality, rate, PlaybackSampleRate, streamer)
}

// percentToExponent maps a 0-100 volume percentage onto the logarithmic
// scale the volume effect expects.
func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}
