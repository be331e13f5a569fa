package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrDevice indicates the audio input device is unavailable or was denied.
var ErrDevice = errors.New("audio input unavailable")

// Asset is the finalized binary recording produced from captured audio
// chunks. It is immutable after finalization and consumed exactly once
// by the transcription requester.
type Asset struct {
	Bytes    []byte
	MimeType string
}

// Empty reports whether the asset holds no audio data.
func (a Asset) Empty() bool {
	return len(a.Bytes) == 0
}

// Device opens an audio input stream. Implementations include the local
// portaudio microphone and the websocket-fed remote microphone.
type Device interface {
	Open(ctx context.Context) (*Stream, error)
}

// Microphone owns acquisition and release of the single input stream.
// Implemented by resource.Manager.
type Microphone interface {
	AcquireMicrophone(ctx context.Context) (*Stream, error)
	ReleaseMicrophone()
}

// Stream is a live audio input stream. Chunks arrive on Chunks() in
// capture order; the channel closes after Close.
type Stream struct {
	chunks    <-chan []byte
	mimeTypes []string
	closeFn   func() error

	mu     sync.Mutex
	closed bool
}

// NewStream wraps a chunk channel as a Stream. mimeTypes lists the
// encodings the device supports, in descending preference. closeFn must
// cause the chunk channel to close.
func NewStream(chunks <-chan []byte, mimeTypes []string, closeFn func() error) *Stream {
	return &Stream{
		chunks:    chunks,
		mimeTypes: mimeTypes,
		closeFn:   closeFn,
	}
}

// Chunks returns the channel of captured audio chunks.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// MimeTypes returns the encodings the device supports, best first.
func (s *Stream) MimeTypes() []string {
	return s.mimeTypes
}

// Close stops the stream. Safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// DefaultMimeCandidates is the descending-preference encoding list used
// when beginning a capture.
var DefaultMimeCandidates = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg",
	"audio/mp4",
}

// SelectMimeType returns the first candidate the device supports, or ""
// when none match (the device's container default applies).
func SelectMimeType(supported, candidates []string) string {
	for _, candidate := range candidates {
		for _, s := range supported {
			if s == candidate {
				return candidate
			}
		}
	}
	return ""
}

// ExtensionForMime maps an encoding identifier to the upload file
// extension by substring match, defaulting to webm.
func ExtensionForMime(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mp4"):
		return "mp4"
	case strings.Contains(mimeType, "ogg"):
		return "ogg"
	case strings.Contains(mimeType, "webm"):
		return "webm"
	default:
		return "webm"
	}
}
