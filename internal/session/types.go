package session

import (
	"context"

	"github.com/attuneai/coach-gateway/internal/capture"
	"github.com/attuneai/coach-gateway/internal/coach"
	"github.com/attuneai/coach-gateway/internal/resource"
	"github.com/attuneai/coach-gateway/internal/transcribe"
)

// State is the single authoritative interaction state. Exactly one value
// is active at any time; transitions happen only inside the Machine.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateDisabled   State = "disabled"
)

// Turn represents exactly one conversational exchange. It is fully reset
// at the start of each new recording.
type Turn struct {
	UserTranscript   string
	IsFinal          bool
	CoachText        string
	IsCoachStreaming bool
	AudioHandle      *resource.Handle
	ErrorMessage     string
}

// Snapshot is a consistent copy of the machine's observable state,
// handed to the presentation layer.
type Snapshot struct {
	State     State
	SessionID string
	Turn      Turn
	Meta      coach.Meta
}

// EventType classifies listener notifications.
type EventType string

const (
	EventState      EventType = "state"      // interaction state changed
	EventTranscript EventType = "transcript" // final user transcript set
	EventToken      EventType = "token"      // one coach reveal delta
	EventMeta       EventType = "meta"       // session classification updated
	EventFinal      EventType = "final"      // turn settled, audio handle resolved or omitted
	EventError      EventType = "error"      // user-facing error message set
)

// Event is one listener notification. Delta carries the reveal character
// for EventToken.
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Delta    string
}

// Transcriber submits a captured asset for transcription.
type Transcriber interface {
	Submit(ctx context.Context, asset capture.Asset, sessionID string) (transcribe.Result, error)
}

// Synthesizer turns reply text into normalized playable audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, sessionID string) (data []byte, contentType string, err error)
}
