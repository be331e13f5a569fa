package gateway

import (
	"sync"

	"github.com/attuneai/coach-gateway/internal/resource"
	"github.com/attuneai/coach-gateway/internal/session"
)

// Hub tracks the live session streams so the playback route can resolve
// handle URLs to the owning session's audio.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]*session.Machine
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*session.Machine)}
}

// Register adds a stream's machine under its stream id.
func (h *Hub) Register(streamID string, m *session.Machine) {
	h.mu.Lock()
	h.streams[streamID] = m
	h.mu.Unlock()
}

// Unregister removes a stream. Safe when the id is unknown.
func (h *Hub) Unregister(streamID string) {
	h.mu.Lock()
	delete(h.streams, streamID)
	h.mu.Unlock()
}

// Resolve looks up a live playable handle by stream and handle id.
func (h *Hub) Resolve(streamID, handleID string) (*resource.Handle, bool) {
	h.mu.RLock()
	m, ok := h.streams[streamID]
	h.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return m.Resolve(handleID)
}

// Len returns the number of live streams.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}
