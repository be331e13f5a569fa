package synthesize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/attuneai/coach-gateway/internal/resilience"
	"github.com/rs/zerolog"
)

// CanonicalAudioMime is the content type assumed for synthesized audio
// when the backend does not report one.
const CanonicalAudioMime = "audio/mpeg"

// ErrSynthesis indicates synthesis failed. Non-fatal to the turn: the
// text is kept and only the audio handle stays unset.
var ErrSynthesis = errors.New("synthesis failed")

// ErrMalformedPayload is the ErrSynthesis subtype for a JSON response
// matching none of the known audio shapes.
var ErrMalformedPayload = fmt.Errorf("%w: malformed backend payload", ErrSynthesis)

// backendResult is the synthesis response union. Exactly one field is
// populated in a valid JSON response: inline base64 audio, a remote
// audio URL (absolute or root-relative), or a named file to fetch from
// the backend's audio route.
type backendResult struct {
	AudioBase64 string `json:"audio_base64"`
	AudioURL    string `json:"audioUrl"`
	Filename    string `json:"filename"`
}

// Client submits reply text for synthesis and normalizes the backend's
// three possible response shapes into one playable byte payload. Handle
// creation stays with the session state machine, which owns the
// resource lifecycle.
type Client struct {
	base       string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewClient creates a synthesis client against the backend base URL.
func NewClient(base string, httpClient *http.Client, retry *resilience.RetryConfig, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: httpClient,
		retry:      retry,
		logger:     logger,
	}
}

// Synthesize submits text to the synthesis endpoint and returns
// normalized audio bytes with a never-empty content type. Empty or
// whitespace-only text is rejected before any request is sent.
func (c *Client) Synthesize(ctx context.Context, text, sessionID string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("%w: empty text", ErrSynthesis)
	}

	payload := map[string]string{"text": text}
	if sessionID != "" {
		payload["session_id"] = sessionID
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	body, contentType, status, err := c.post(ctx, c.base+"/tts", reqBody)
	if err != nil {
		c.logger.Error().Err(err).Msg("TTS request failed")
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if status < 200 || status >= 300 {
		c.logger.Error().
			Int("status", status).
			Str("body", truncateForLog(body)).
			Msg("TTS backend rejected request")
		return nil, "", fmt.Errorf("%w: backend status %d", ErrSynthesis, status)
	}

	if strings.Contains(contentType, "application/json") {
		return c.normalizeJSON(ctx, body)
	}

	// Raw audio body
	if contentType == "" {
		contentType = CanonicalAudioMime
	}
	return body, contentType, nil
}

// normalizeJSON reconciles the three backend response shapes into one
// byte payload plus content type.
func (c *Client) normalizeJSON(ctx context.Context, body []byte) ([]byte, string, error) {
	var result backendResult
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error().Err(err).Msg("TTS response JSON is invalid")
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	switch {
	case result.AudioBase64 != "":
		data, err := base64.StdEncoding.DecodeString(result.AudioBase64)
		if err != nil {
			c.logger.Error().Err(err).Msg("TTS inline audio is not valid base64")
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return data, CanonicalAudioMime, nil

	case result.AudioURL != "":
		return c.fetchAudio(ctx, ResolveAudioURL(c.base, result.AudioURL))

	case result.Filename != "":
		return c.fetchAudio(ctx, c.base+"/audio/"+result.Filename)

	default:
		c.logger.Error().
			Str("body", truncateForLog(body)).
			Msg("TTS response matches no known audio shape")
		return nil, "", ErrMalformedPayload
	}
}

// fetchAudio performs the secondary fetch for URL and filename shapes.
func (c *Client) fetchAudio(ctx context.Context, url string) ([]byte, string, error) {
	var body []byte
	var contentType string
	do := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
		}

		contentType = resp.Header.Get("Content-Type")
		body, err = io.ReadAll(resp.Body)
		return err
	}

	if err := resilience.Retry(do, c.retry, resilience.IsTransientNetworkError); err != nil {
		c.logger.Error().Err(err).Str("url", url).Msg("Audio fetch failed")
		return nil, "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	if contentType == "" {
		contentType = CanonicalAudioMime
	}
	return body, contentType, nil
}

func (c *Client) post(ctx context.Context, url string, reqBody []byte) (body []byte, contentType string, status int, err error) {
	do := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		contentType = resp.Header.Get("Content-Type")
		body, err = io.ReadAll(resp.Body)
		return err
	}

	err = resilience.Retry(do, c.retry, resilience.IsTransientNetworkError)
	return body, contentType, status, err
}

// ResolveAudioURL resolves a possibly root-relative audio URL against
// the backend base, inserting exactly one path separator. Absolute URLs
// pass through unchanged, so resolution is idempotent.
func ResolveAudioURL(base, raw string) string {
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return base + raw
	}
	return base + "/" + raw
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
