package playback

import (
	"context"
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Router reads the first chunk of a stream, classifies it and hands the
// stream to the matching pipeline. WAV containers have their 44-byte header
// stripped and play through the PCM pipeline; unrecognized streams fall
// through to the compressed pipeline.
type Router struct {
	streams *StreamPlayer
	pcm     *PCMPlayer
}

// NewRouter builds a router with its two pipelines.
func NewRouter(newDevice DeviceFactory, newNode NodeFactory) *Router {
	return &Router{
		streams: NewStreamPlayer(newDevice),
		pcm:     NewPCMPlayer(newNode),
	}
}

// Play sniffs source and plays it on the pipeline matching its encoding.
// requestedFormat is the output format the synthesis was requested with and
// serves as the classification fallback for headerless streams.
func (r *Router) Play(ctx context.Context, source ChunkSource, requestedFormat string) Result {
	first, err := source.Next()
	if err != nil && err != io.EOF {
		log.Error().Err(err).Msg("Audio stream failed before first chunk")
		return Result{Finished: false}
	}

	kind := DetectKind(first, requestedFormat)
	log.Debug().Stringer("kind", kind).Int("first_chunk", len(first)).Msg("Classified audio stream")
	replay := &replaySource{first: first, rest: source}

	switch kind {
	case KindWAV:
		rate := pcmRateFromFormat(requestedFormat)
		if rate <= 0 {
			rate = wavHeaderRate(first)
		}
		return r.pcm.Play(ctx, &stripSource{src: replay}, rate)
	case KindPCM:
		return r.pcm.Play(ctx, replay, pcmRateFromFormat(requestedFormat))
	default:
		return r.streams.Play(ctx, replay)
	}
}

// Stop interrupts whichever pipeline is active, returning the interruption
// position, nil when idle.
func (r *Router) Stop() *float64 {
	if pos := r.streams.Stop(); pos != nil {
		return pos
	}
	return r.pcm.Stop()
}

// Close releases retained playback resources.
func (r *Router) Close() {
	r.streams.Stop()
	r.pcm.Close()
}

// replaySource re-emits the already-read first chunk ahead of the rest of
// the stream.
type replaySource struct {
	first []byte
	rest  ChunkSource
}

func (r *replaySource) Next() ([]byte, error) {
	if r.first != nil {
		chunk := r.first
		r.first = nil
		return chunk, nil
	}
	return r.rest.Next()
}

// stripSource removes the WAV container header from the stream. When the
// stream ends before a complete header arrived, the withheld bytes are
// passed through so nothing is silently lost.
type stripSource struct {
	stripper HeaderStripper
	src      ChunkSource
}

func (s *stripSource) Next() ([]byte, error) {
	for {
		chunk, err := s.src.Next()
		if err == io.EOF {
			if withheld := s.stripper.Flush(); len(withheld) > 0 {
				return withheld, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if payload := s.stripper.Strip(chunk); len(payload) > 0 {
			return payload, nil
		}
	}
}

// pcmRateFromFormat extracts the sample rate from a pcm_NNNNN format string.
func pcmRateFromFormat(format string) float64 {
	trimmed := strings.ToLower(strings.TrimSpace(format))
	if !strings.HasPrefix(trimmed, "pcm_") {
		return 0
	}
	rate, err := strconv.Atoi(trimmed[len("pcm_"):])
	if err != nil || rate <= 0 {
		return 0
	}
	return float64(rate)
}

// wavHeaderRate reads the sample rate field of a RIFF/WAVE header.
func wavHeaderRate(header []byte) float64 {
	if len(header) < 28 {
		return 0
	}
	return float64(binary.LittleEndian.Uint32(header[24:28]))
}
