package playback

import (
	"bytes"
	"strings"
)

// Kind classifies the encoding of an incoming audio stream.
type Kind int

const (
	// KindUnknown is anything unrecognized. Unknown streams are routed to
	// the compressed pipeline as a best-effort default, since this service
	// mostly emits MPEG-family audio.
	KindUnknown Kind = iota
	// KindWAV is a RIFF/WAVE container wrapping raw PCM samples.
	KindWAV
	// KindMP3 is an MPEG audio bitstream, with or without a leading ID3 tag.
	KindMP3
	// KindPCM is headerless raw PCM, inferred from the requested format.
	KindPCM
)

func (k Kind) String() string {
	switch k {
	case KindWAV:
		return "wav"
	case KindMP3:
		return "mp3"
	case KindPCM:
		return "pcm"
	default:
		return "unknown"
	}
}

// DetectKind classifies a stream from its first bytes plus the output format
// the caller requested. Checks run in order; the first match wins.
func DetectKind(prefix []byte, requestedFormat string) Kind {
	if len(prefix) >= 12 &&
		bytes.Equal(prefix[0:4], []byte("RIFF")) &&
		bytes.Equal(prefix[8:12], []byte("WAVE")) {
		return KindWAV
	}
	if len(prefix) >= 3 && bytes.Equal(prefix[0:3], []byte("ID3")) {
		return KindMP3
	}
	if len(prefix) >= 2 && prefix[0] == 0xFF && prefix[1]&0xE0 == 0xE0 {
		return KindMP3
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(requestedFormat)), "pcm_") {
		return KindPCM
	}
	return KindUnknown
}

// wavHeaderSize is the fixed length of the minimal RIFF/WAVE header this
// service emits before the sample payload.
const wavHeaderSize = 44

// HeaderStripper removes the 44-byte WAV container header from a chunked
// stream. The header may span any number of chunk boundaries; only the
// sample payload passes through once it has been consumed.
type HeaderStripper struct {
	consumed int
	withheld []byte
}

// Strip returns the payload portion of chunk with any remaining header
// bytes removed. Returns nil while the header is still being consumed.
func (h *HeaderStripper) Strip(chunk []byte) []byte {
	if h.consumed >= wavHeaderSize {
		return chunk
	}
	remaining := wavHeaderSize - h.consumed
	if len(chunk) <= remaining {
		h.consumed += len(chunk)
		h.withheld = append(h.withheld, chunk...)
		return nil
	}
	h.withheld = append(h.withheld, chunk[:remaining]...)
	h.consumed = wavHeaderSize
	return chunk[remaining:]
}

// Flush returns the withheld bytes when the stream ended before a complete
// header arrived, so short streams still deliver everything they carried.
// Returns nil once the full header has been consumed.
func (h *HeaderStripper) Flush() []byte {
	if h.consumed >= wavHeaderSize {
		return nil
	}
	withheld := h.withheld
	h.withheld = nil
	h.consumed = wavHeaderSize
	return withheld
}
