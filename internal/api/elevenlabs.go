// Package api provides the HTTP client for the ElevenLabs text-to-speech API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/steipete/elevenlabskit/internal/voice"
)

const (
	defaultBaseURL    = "https://api.elevenlabs.io"
	requestTimeout    = 45 * time.Second
	listVoicesTimeout = 15 * time.Second

	maxAttempts  = 3
	maxErrorBody = 4096
)

// retryBackoff is the per-attempt delay before retrying a retryable failure.
var retryBackoff = []time.Duration{250 * time.Millisecond, 750 * time.Millisecond, 1500 * time.Millisecond}

// Request is the payload for a text-to-speech synthesis call. Optional
// fields are pointers so that zero is distinguishable from unset (stability
// 0 is a valid value).
type Request struct {
	Text         string
	ModelID      string
	OutputFormat string // e.g. "mp3_44100_128", "pcm_44100"
	Speed        *float64
	Stability    *float64
	Similarity   *float64
	Style        *float64
	SpeakerBoost *bool
	Seed         *uint32
	Normalize    string // "auto", "on", "off"
	Language     string // ISO 639-1
	LatencyTier  *int   // 0-4
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode  int
	ContentType string
	Body        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elevenlabs returned status %d ct=%s: %s", e.StatusCode, e.ContentType, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Client is the HTTP client for the ElevenLabs API.
type Client struct {
	client *resty.Client
	apiKey string
	sleep  func(context.Context, time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.client.SetBaseURL(baseURL)
	}
}

// WithSleep overrides the retry delay function (used in tests).
func WithSleep(sleep func(context.Context, time.Duration)) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient creates a new ElevenLabs API client with sensible defaults.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		client: resty.New().
			SetBaseURL(defaultBaseURL).
			SetHeader("xi-api-key", apiKey),
		apiKey: apiKey,
		sleep: func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListVoices fetches the voices available to the account.
func (c *Client) ListVoices(ctx context.Context) ([]voice.Voice, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/v1/voices")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voices: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{
			StatusCode:  resp.StatusCode(),
			ContentType: strings.ToLower(resp.Header().Get("Content-Type")),
			Body:        truncatedErrorBody(resp.Body()),
		}
	}

	var response struct {
		Voices []voice.Voice `json:"voices"`
	}
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse voices response: %w", err)
	}

	return response.Voices, nil
}

// Synthesize performs a full (non-streaming) synthesis call and returns the
// audio payload. Retryable failures (429, 5xx, transport errors) are retried
// up to three attempts with backoff, honoring Retry-After.
func (c *Client) Synthesize(ctx context.Context, voiceID string, req Request) ([]byte, error) {
	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	path := fmt.Sprintf("/v1/text-to-speech/%s", voiceID)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			log.Debug().Int("attempt", attempt).Msg("Retrying synthesis request")
		}

		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", acceptHeader(req.OutputFormat)).
			SetBody(body).
			Post(path)
		if err != nil {
			lastErr = fmt.Errorf("synthesis request failed: %w", err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			if attempt < maxAttempts-1 {
				c.sleep(ctx, retryBackoff[attempt])
				continue
			}
			return nil, lastErr
		}

		contentType := strings.ToLower(resp.Header().Get("Content-Type"))

		if !resp.IsSuccess() {
			statusErr := &StatusError{
				StatusCode:  resp.StatusCode(),
				ContentType: contentType,
				Body:        truncatedErrorBody(resp.Body()),
			}
			lastErr = statusErr
			if statusErr.retryable() && attempt < maxAttempts-1 {
				c.sleep(ctx, retryDelay(attempt, resp.Header().Get("Retry-After")))
				continue
			}
			return nil, statusErr
		}

		if !isAudioContentType(contentType, req.OutputFormat) {
			return nil, &StatusError{
				StatusCode:  415,
				ContentType: contentType,
				Body:        truncatedErrorBody(resp.Body()),
			}
		}

		return resp.Body(), nil
	}

	return nil, lastErr
}

// retryDelay picks the larger of the scheduled backoff and the server's
// Retry-After hint.
func retryDelay(attempt int, retryAfter string) time.Duration {
	delay := retryBackoff[attempt]
	if seconds, err := strconv.ParseFloat(strings.TrimSpace(retryAfter), 64); err == nil && seconds > 0 {
		hinted := time.Duration(seconds * float64(time.Second))
		if hinted > delay {
			delay = hinted
		}
	}
	return delay
}

// buildPayload assembles the JSON body, omitting unset fields.
func buildPayload(req Request) map[string]any {
	payload := map[string]any{"text": req.Text}

	if modelID := strings.TrimSpace(req.ModelID); modelID != "" {
		payload["model_id"] = modelID
	}
	if outputFormat := strings.TrimSpace(req.OutputFormat); outputFormat != "" {
		payload["output_format"] = outputFormat
	}
	if req.Seed != nil {
		payload["seed"] = *req.Seed
	}
	if req.Normalize != "" {
		payload["apply_text_normalization"] = req.Normalize
	}
	if req.Language != "" {
		payload["language_code"] = req.Language
	}

	voiceSettings := map[string]any{}
	if req.Speed != nil {
		voiceSettings["speed"] = *req.Speed
	}
	if req.Stability != nil {
		voiceSettings["stability"] = *req.Stability
	}
	if req.Similarity != nil {
		voiceSettings["similarity_boost"] = *req.Similarity
	}
	if req.Style != nil {
		voiceSettings["style"] = *req.Style
	}
	if req.SpeakerBoost != nil {
		voiceSettings["use_speaker_boost"] = *req.SpeakerBoost
	}
	if len(voiceSettings) > 0 {
		payload["voice_settings"] = voiceSettings
	}

	return payload
}

func acceptHeader(outputFormat string) string {
	normalized := strings.ToLower(strings.TrimSpace(outputFormat))
	if strings.HasPrefix(normalized, "pcm_") {
		return "audio/pcm"
	}
	return "audio/mpeg"
}

// isAudioContentType reports whether the response body is audio. PCM
// responses are sometimes served as octet-stream.
func isAudioContentType(contentType, outputFormat string) bool {
	if strings.Contains(contentType, "audio") {
		return true
	}
	normalized := strings.ToLower(strings.TrimSpace(outputFormat))
	return strings.HasPrefix(normalized, "pcm_") && strings.Contains(contentType, "octet-stream")
}

func truncatedErrorBody(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	s := strings.ReplaceAll(string(body), "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}
