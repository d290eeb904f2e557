package api

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// StreamChunkSize is the delivery unit for streamed audio. The service
// sends arbitrarily sized network reads; they are re-sliced into chunks of
// this size so downstream consumers see a steady cadence.
const StreamChunkSize = 2048

// Stream is an ordered sequence of audio byte chunks from a streaming
// synthesis response. It terminates with io.EOF on natural end or with any
// other error when the transfer breaks mid-stream.
type Stream struct {
	body    io.ReadCloser
	pending []byte
	done    bool
}

// Next returns the next audio chunk. Chunks are StreamChunkSize bytes except
// possibly the last. After the first non-nil error the stream is exhausted.
func (s *Stream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	for len(s.pending) < StreamChunkSize {
		buf := make([]byte, StreamChunkSize)
		n, err := s.body.Read(buf)
		if n > 0 {
			s.pending = append(s.pending, buf[:n]...)
		}
		if err != nil {
			s.done = true
			s.body.Close()
			if err == io.EOF {
				if len(s.pending) > 0 {
					chunk := s.pending
					s.pending = nil
					return chunk, nil
				}
				return nil, io.EOF
			}
			return nil, fmt.Errorf("stream read failed: %w", err)
		}
	}

	chunk := s.pending[:StreamChunkSize]
	s.pending = s.pending[StreamChunkSize:]
	return chunk, nil
}

// Close releases the underlying response body. Safe to call more than once.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

// StreamSynthesize performs a streaming synthesis call and returns the chunk
// stream once response headers have been validated. The returned Stream must
// be fully drained or closed.
func (c *Client) StreamSynthesize(ctx context.Context, voiceID string, req Request) (*Stream, error) {
	path := fmt.Sprintf("/v1/text-to-speech/%s/stream", voiceID)
	query := url.Values{}
	if outputFormat := strings.TrimSpace(req.OutputFormat); outputFormat != "" {
		query.Set("output_format", outputFormat)
	}
	if req.LatencyTier != nil {
		query.Set("optimize_streaming_latency", strconv.Itoa(*req.LatencyTier))
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", acceptHeader(req.OutputFormat)).
		SetQueryParamsFromValues(query).
		SetBody(buildPayload(req)).
		SetDoNotParseResponse(true).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	raw := resp.RawBody()
	contentType := strings.ToLower(resp.Header().Get("Content-Type"))

	if resp.StatusCode() >= 400 {
		message := readErrorBody(raw)
		raw.Close()
		return nil, &StatusError{
			StatusCode:  resp.StatusCode(),
			ContentType: contentType,
			Body:        message,
		}
	}

	if !isAudioContentType(contentType, req.OutputFormat) {
		message := readErrorBody(raw)
		raw.Close()
		return nil, &StatusError{
			StatusCode:  415,
			ContentType: contentType,
			Body:        message,
		}
	}

	log.Debug().Str("voice", voiceID).Str("format", req.OutputFormat).Msg("Streaming synthesis started")

	return &Stream{body: raw}, nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return truncatedErrorBody(data)
}
