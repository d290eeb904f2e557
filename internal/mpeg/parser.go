// Package mpeg implements a progressive MPEG audio bitstream parser.
//
// The parser is push-driven: callers feed it arbitrary byte slices as they
// arrive from the network and receive complete audio frames and the stream
// format through callbacks. Frames split across feed boundaries are
// reassembled internally.
package mpeg

import (
	"errors"
	"fmt"
)

// Format describes the audio stream discovered from the first valid frame.
type Format struct {
	SampleRate float64
	Channels   int
	// Layer is the MPEG layer number (1 to 3).
	Layer int
}

// Packet is one complete MPEG audio frame.
type Packet struct {
	Data []byte
	// Offset is the byte position of the frame within the data processed by
	// the Feed call that produced it.
	Offset int
}

// ErrLostSync is returned when no valid frame sync can be found within the
// retained scan window, which indicates the stream is not MPEG audio.
var ErrLostSync = errors.New("mpeg: lost frame sync")

// maxResyncWindow bounds how much unsynced data the parser retains before
// giving up on the stream.
const maxResyncWindow = 32 * 1024

const id3HeaderSize = 10

// Parser extracts MPEG audio frames from a byte stream fed incrementally.
// A leading ID3v2 tag is skipped. Not safe for concurrent use.
type Parser struct {
	onFormat  func(Format)
	onPackets func([]Packet)

	remainder  []byte
	skipBytes  int
	checkedID3 bool
	unsynced   int
	format     *Format
	cookie     []byte
}

// NewParser creates a Parser. onFormat fires once, before the first packet
// batch; onPackets fires at most once per Feed call with the complete frames
// that call produced. Either callback may be nil.
func NewParser(onFormat func(Format), onPackets func([]Packet)) *Parser {
	return &Parser{
		onFormat:  onFormat,
		onPackets: onPackets,
	}
}

// Format returns the discovered stream format, or nil before the first
// valid frame header has been seen.
func (p *Parser) Format() *Format {
	return p.format
}

// Cookie returns the codec configuration blob for the stream: the four
// header bytes of the first valid frame. Nil before format discovery.
func (p *Parser) Cookie() []byte {
	return p.cookie
}

// Feed consumes the next chunk of the stream. Complete frames are reported
// through the packet callback; a trailing partial frame is retained for the
// next call.
func (p *Parser) Feed(data []byte) error {
	buf := append(p.remainder, data...)
	p.remainder = nil

	if p.skipBytes > 0 {
		if p.skipBytes >= len(buf) {
			p.skipBytes -= len(buf)
			return nil
		}
		buf = buf[p.skipBytes:]
		p.skipBytes = 0
	}

	if !p.checkedID3 {
		if len(buf) < id3HeaderSize {
			p.remainder = buf
			return nil
		}
		p.checkedID3 = true
		if buf[0] == 'I' && buf[1] == 'D' && buf[2] == '3' {
			tagSize := syncsafeSize(buf[6:10])
			total := id3HeaderSize + tagSize
			if total >= len(buf) {
				p.skipBytes = total - len(buf)
				return nil
			}
			buf = buf[total:]
		}
	}

	var packets []Packet
	pos := 0
	for {
		syncAt := findSync(buf[pos:])
		if syncAt < 0 {
			// Keep the final byte in case a 0xFF sync byte is the last one.
			tail := len(buf)
			if tail > pos && buf[tail-1] == 0xFF {
				tail--
			}
			p.unsynced += tail - pos
			p.remainder = buf[tail:]
			break
		}
		pos += syncAt
		p.unsynced += syncAt

		if len(buf)-pos < 4 {
			p.remainder = buf[pos:]
			break
		}

		header, err := parseHeader(buf[pos:])
		if err != nil {
			// False sync, scan on from the next byte.
			pos++
			p.unsynced++
			continue
		}

		if len(buf)-pos < header.frameLength {
			p.remainder = buf[pos:]
			break
		}

		if p.format == nil {
			format := Format{
				SampleRate: float64(header.sampleRate),
				Channels:   header.channels,
				Layer:      header.layer,
			}
			p.format = &format
			p.cookie = append([]byte(nil), buf[pos:pos+4]...)
			if p.onFormat != nil {
				p.onFormat(format)
			}
		}

		frame := make([]byte, header.frameLength)
		copy(frame, buf[pos:pos+header.frameLength])
		packets = append(packets, Packet{Data: frame, Offset: pos})
		pos += header.frameLength
		p.unsynced = 0
	}

	if p.unsynced+len(p.remainder) > maxResyncWindow {
		return fmt.Errorf("%w after %d bytes", ErrLostSync, p.unsynced+len(p.remainder))
	}

	if len(packets) > 0 && p.onPackets != nil {
		p.onPackets(packets)
	}
	return nil
}

func findSync(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0xFF && buf[i+1]&0xE0 == 0xE0 {
			return i
		}
	}
	return -1
}

func syncsafeSize(b []byte) int {
	return int(b[0]&0x7F)<<21 | int(b[1]&0x7F)<<14 | int(b[2]&0x7F)<<7 | int(b[3]&0x7F)
}

type frameHeader struct {
	layer       int
	sampleRate  int
	channels    int
	frameLength int
}

// Bitrates in kbit/s, indexed by [version group][layer-1][bitrate index].
// Version group 0 is MPEG-1, group 1 covers MPEG-2 and 2.5.
var bitrateTable = [2][3][16]int{
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
}

// Sample rates in Hz, indexed by [version][sample rate index].
var sampleRateTable = map[int][3]int{
	3: {44100, 48000, 32000}, // MPEG-1
	2: {22050, 24000, 16000}, // MPEG-2
	0: {11025, 12000, 8000},  // MPEG-2.5
}

var errBadHeader = errors.New("mpeg: invalid frame header")

func parseHeader(buf []byte) (frameHeader, error) {
	if buf[0] != 0xFF || buf[1]&0xE0 != 0xE0 {
		return frameHeader{}, errBadHeader
	}

	version := int(buf[1]>>3) & 0x3
	layerBits := int(buf[1]>>1) & 0x3
	bitrateIdx := int(buf[2]>>4) & 0xF
	sampleRateIdx := int(buf[2]>>2) & 0x3
	padding := int(buf[2]>>1) & 0x1
	channelMode := int(buf[3]>>6) & 0x3

	if version == 1 || layerBits == 0 {
		return frameHeader{}, errBadHeader
	}
	if bitrateIdx == 0 || bitrateIdx == 15 || sampleRateIdx == 3 {
		return frameHeader{}, errBadHeader
	}

	rates, ok := sampleRateTable[version]
	if !ok {
		return frameHeader{}, errBadHeader
	}
	sampleRate := rates[sampleRateIdx]

	layer := 4 - layerBits
	versionGroup := 0
	if version != 3 {
		versionGroup = 1
	}
	bitrate := bitrateTable[versionGroup][layer-1][bitrateIdx] * 1000
	if bitrate == 0 {
		return frameHeader{}, errBadHeader
	}

	var frameLength int
	switch layer {
	case 1:
		frameLength = (12*bitrate/sampleRate + padding) * 4
	case 2:
		frameLength = 144*bitrate/sampleRate + padding
	case 3:
		samplesPerFrame := 1152
		if versionGroup == 1 {
			samplesPerFrame = 576
		}
		frameLength = samplesPerFrame/8*bitrate/sampleRate + padding
	}
	if frameLength < 4 {
		return frameHeader{}, errBadHeader
	}

	channels := 2
	if channelMode == 3 {
		channels = 1
	}

	return frameHeader{
		layer:       layer,
		sampleRate:  sampleRate,
		channels:    channels,
		frameLength: frameLength,
	}, nil
}
