package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/attuneai/coach-gateway/internal/config"
	"github.com/attuneai/coach-gateway/internal/observability"
	"github.com/attuneai/coach-gateway/internal/resilience"
	"github.com/attuneai/coach-gateway/internal/synthesize"
	"github.com/rs/zerolog"
)

// Proxy fronts the coaching backend for clients that cannot reach it
// directly: transcription upload and audio fetch pass through, TTS is
// normalized into a single binary response shape.
type Proxy struct {
	backendBase string
	httpClient  *http.Client
	synthesizer *synthesize.Client
	logger      zerolog.Logger
}

// NewProxy creates a proxy against the configured backend.
func NewProxy(cfg *config.Config, logger zerolog.Logger) *Proxy {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryInitialBackoff(),
		MaxBackoff:        resilience.DefaultRetryConfig().MaxBackoff,
		BackoffMultiplier: resilience.DefaultRetryConfig().BackoffMultiplier,
	}

	return &Proxy{
		backendBase: cfg.BackendBase(),
		httpClient:  httpClient,
		synthesizer: synthesize.NewClient(cfg.BackendBase(), httpClient, retry, logger),
		logger:      logger,
	}
}

// Transcribe forwards a multipart recording upload to the backend
// unmodified and relays the backend's response as-is.
func (p *Proxy) Transcribe(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.backendBase+"/transcribe", r.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build backend request", err.Error())
		return
	}
	req.Header.Set("Content-Type", r.Header.Get("Content-Type"))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error().Err(err).Msg("Transcription proxy request failed")
		writeError(w, http.StatusBadGateway, "Transcription backend unreachable", err.Error())
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn().Err(err).Msg("Error relaying transcription response")
	}
}

type ttsRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// TTS validates the request, runs backend synthesis and answers with the
// normalized audio bytes regardless of which shape the backend returned.
func (p *Proxy) TTS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err.Error())
		return
	}

	var req ttsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Missing 'text' in request body", "")
		return
	}

	audio, contentType, err := p.synthesizer.Synthesize(r.Context(), req.Text, req.SessionID)
	if err != nil {
		p.logger.Error().Err(err).Msg("TTS proxy synthesis failed")
		writeError(w, http.StatusBadGateway, "TTS backend request failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(audio); err != nil {
		p.logger.Warn().Err(err).Msg("Error writing synthesized audio")
	}
}

// Audio fetches a backend-named audio file and relays it, defaulting the
// content type only when the backend does not declare one.
func (p *Proxy) Audio(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "..") {
		writeError(w, http.StatusBadRequest, "Invalid audio filename", "")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, p.backendBase+"/audio/"+filename, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build backend request", err.Error())
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error().Err(err).Msg("Audio proxy request failed")
		writeError(w, http.StatusBadGateway, "Audio backend unreachable", err.Error())
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = synthesize.CanonicalAudioMime
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn().Err(err).Msg("Error relaying audio response")
	}
}

// HandlePlayback serves the revocable audio handles of live sessions.
// Revoked or unknown handles answer 404 regardless of how recently they
// were playable.
func HandlePlayback(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamID := r.PathValue("stream")
		handleID := r.PathValue("handle")

		handle, ok := hub.Resolve(streamID, handleID)
		if !ok {
			writeError(w, http.StatusNotFound, "Audio no longer available", "")
			return
		}

		w.Header().Set("Content-Type", handle.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(handle.Bytes()); err != nil {
			logger := observability.GetLogger()
			logger.Warn().Err(err).Msg("Error writing playback audio")
		}
	}
}

// writeError answers with the backend's JSON error envelope.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload := map[string]string{"error": message}
	if details != "" {
		payload["details"] = details
	}
	_ = json.NewEncoder(w).Encode(payload)
}
