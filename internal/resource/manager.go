package resource

import (
	"context"
	"fmt"
	"sync"

	"github.com/attuneai/coach-gateway/internal/capture"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handle is an opaque, revocable reference to playable audio bytes.
// Exactly one handle is live per session at a time; ownership sits with
// the session state machine.
type Handle struct {
	id          string
	urlPrefix   string
	bytes       []byte
	contentType string

	mu      sync.Mutex
	revoked bool
}

// ID returns the opaque handle identifier.
func (h *Handle) ID() string {
	return h.id
}

// URL returns the playable URL the presentation layer uses.
func (h *Handle) URL() string {
	return h.urlPrefix + "/" + h.id
}

// Bytes returns the underlying audio bytes.
func (h *Handle) Bytes() []byte {
	return h.bytes
}

// ContentType returns the audio content type. Never empty.
func (h *Handle) ContentType() string {
	return h.contentType
}

// Revoked reports whether the handle has been revoked.
func (h *Handle) Revoked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revoked
}

// revoke marks the handle dead. Returns false if it already was.
func (h *Handle) revoke() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.revoked {
		return false
	}
	h.revoked = true
	return true
}

// Manager owns the transient resources of one session: the microphone
// stream and the currently playable audio handle. At most one of each is
// live; replacement follows revoke-then-replace, last-writer-wins.
type Manager struct {
	device    capture.Device
	urlPrefix string
	logger    zerolog.Logger

	mu     sync.Mutex
	stream *capture.Stream
	handle *Handle
}

// NewManager creates a resource manager over the given input device.
// urlPrefix is the route prefix handle URLs are served under.
func NewManager(device capture.Device, urlPrefix string, logger zerolog.Logger) *Manager {
	return &Manager{
		device:    device,
		urlPrefix: urlPrefix,
		logger:    logger,
	}
}

// AcquireMicrophone opens the input device. A stream still held from a
// prior acquisition is released first, so at most one is ever live.
func (m *Manager) AcquireMicrophone(ctx context.Context) (*capture.Stream, error) {
	m.ReleaseMicrophone()

	stream, err := m.device.Open(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Microphone acquisition failed")
		return nil, fmt.Errorf("%w: %v", capture.ErrDevice, err)
	}

	m.mu.Lock()
	m.stream = stream
	m.mu.Unlock()
	return stream, nil
}

// ReleaseMicrophone closes and clears the held stream. Idempotent and
// safe when nothing is held.
func (m *Manager) ReleaseMicrophone() {
	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("Error releasing microphone stream")
		}
	}
}

// SetAudioResource installs a new playable handle, revoking any prior
// one first. The swap happens under the lock so no observer ever sees a
// dangling intermediate state.
func (m *Manager) SetAudioResource(data []byte, contentType string) *Handle {
	next := &Handle{
		id:          uuid.New().String(),
		urlPrefix:   m.urlPrefix,
		bytes:       data,
		contentType: contentType,
	}

	m.mu.Lock()
	prev := m.handle
	m.handle = next
	m.mu.Unlock()

	if prev != nil && prev.revoke() {
		m.logger.Debug().Str("handle_id", prev.ID()).Msg("Revoked prior audio handle")
	}
	return next
}

// ClearAudioResource revokes and clears the current handle, if any.
func (m *Manager) ClearAudioResource() {
	m.mu.Lock()
	prev := m.handle
	m.handle = nil
	m.mu.Unlock()

	if prev != nil {
		prev.revoke()
	}
}

// AudioResource returns the currently live handle, or nil.
func (m *Manager) AudioResource() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Resolve looks up a handle by id for the playback route. Revoked or
// unknown handles do not resolve.
func (m *Manager) Resolve(id string) (*Handle, bool) {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h == nil || h.id != id || h.Revoked() {
		return nil, false
	}
	return h, true
}

// Shutdown releases everything the manager holds.
func (m *Manager) Shutdown() {
	m.ReleaseMicrophone()
	m.ClearAudioResource()
}
