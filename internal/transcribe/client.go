package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/attuneai/coach-gateway/internal/capture"
	"github.com/attuneai/coach-gateway/internal/resilience"
	"github.com/rs/zerolog"
)

// ErrTranscription indicates the transcription request failed or the
// backend returned no usable transcript. Both are handled identically by
// the caller; the wrapped detail is diagnostic only.
var ErrTranscription = errors.New("transcription failed")

// Result is a successful transcription exchange.
type Result struct {
	Transcript string
	SessionID  string
}

type backendResponse struct {
	Transcript string `json:"transcript"`
	SessionID  string `json:"session_id"`
	Error      string `json:"error"`
}

// Client submits captured assets to the backend transcription endpoint.
type Client struct {
	base       string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewClient creates a transcription client against the backend base URL.
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

// Submit uploads the asset as multipart form data, forwarding sessionID
// only when present. A non-2xx status or a response missing a non-empty
// transcript both fail with ErrTranscription.
func (c *Client) Submit(ctx context.Context, asset capture.Asset, sessionID string) (Result, error) {
	body, contentType, err := encodeForm(asset, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	var respBody []byte
	var status int
	do := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transcribe", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		respBody, err = io.ReadAll(resp.Body)
		return err
	}

	if err := resilience.Retry(do, c.retry, resilience.IsTransientNetworkError); err != nil {
		c.logger.Error().Err(err).Msg("Transcribe request failed")
		return Result{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	var parsed backendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && status < 300 {
		c.logger.Error().Err(err).Msg("Transcribe response is not valid JSON")
		return Result{}, fmt.Errorf("%w: invalid response body", ErrTranscription)
	}

	if status < 200 || status >= 300 {
		c.logger.Error().
			Int("status", status).
			Str("backend_error", parsed.Error).
			Msg("Transcribe backend rejected request")
		return Result{}, fmt.Errorf("%w: backend status %d", ErrTranscription, status)
	}

	if strings.TrimSpace(parsed.Transcript) == "" {
		c.logger.Error().
			Str("session_id", parsed.SessionID).
			Msg("Transcript missing from response")
		return Result{}, fmt.Errorf("%w: empty transcript", ErrTranscription)
	}

	return Result{
		Transcript: parsed.Transcript,
		SessionID:  parsed.SessionID,
	}, nil
}

// encodeForm builds the multipart body: an "audio" file part named
// speech.<ext>, plus session_id when non-empty.
func encodeForm(asset capture.Asset, sessionID string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := "speech." + capture.ExtensionForMime(asset.MimeType)
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(asset.Bytes); err != nil {
		return nil, "", err
	}

	if sessionID != "" {
		if err := w.WriteField("session_id", sessionID); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
