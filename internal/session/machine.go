package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/attuneai/coach-gateway/internal/capture"
	"github.com/attuneai/coach-gateway/internal/coach"
	"github.com/attuneai/coach-gateway/internal/observability"
	"github.com/attuneai/coach-gateway/internal/resource"
	"github.com/rs/zerolog"
)

const (
	errMicrophone    = "Microphone access failed. Please check permissions."
	errTranscription = "Transcription failed. Please try again."
	errSynthesisSoft = "Could not generate audio. Showing transcript only."
)

// Machine is the session state machine: the single source of truth for
// interaction state. It mediates capture, transcription, the coach
// reveal and synthesis, and owns the turn's transient resources.
//
// At most one turn is current at a time. turnSeq marks each turn so
// work superseded by a newer recording or by disablement is discarded
// instead of touching the current turn.
type Machine struct {
	resources   *resource.Manager
	recorder    *capture.Controller
	transcriber Transcriber
	synthesizer Synthesizer
	producer    *coach.Producer
	metrics     *observability.Metrics
	logger      zerolog.Logger

	mu          sync.Mutex
	state       State
	sessionID   string
	turn        Turn
	meta        coach.Meta
	lastModes   []string
	turnSeq     int
	captureSess *capture.Session
	reveal      *coach.Reveal
	listener    func(Event)
}

// NewMachine creates a machine in Idle.
func NewMachine(
	resources *resource.Manager,
	recorder *capture.Controller,
	transcriber Transcriber,
	synthesizer Synthesizer,
	producer *coach.Producer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Machine {
	m := &Machine{
		resources:   resources,
		recorder:    recorder,
		transcriber: transcriber,
		synthesizer: synthesizer,
		producer:    producer,
		metrics:     metrics,
		logger:      logger,
		state:       StateIdle,
	}
	metrics.RecordSessionStart()
	return m
}

// SetListener registers the observer notified on every mutation.
func (m *Machine) SetListener(fn func(Event)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

// State returns the current interaction state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the backend-issued session token, if any.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Snapshot returns a consistent copy of the observable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:     m.state,
		SessionID: m.sessionID,
		Turn:      m.turn,
		Meta:      m.meta,
	}
}

// Resolve looks up a playable handle for the playback route.
func (m *Machine) Resolve(handleID string) (*resource.Handle, bool) {
	return m.resources.Resolve(handleID)
}

// StartRecording begins a new turn. Valid from Idle, or from Speaking
// where it supersedes the in-flight turn: the reveal is stopped, partial
// text discarded, and any late synthesis result dropped on arrival.
// Anywhere else it is a guarded no-op. It blocks until the microphone is
// granted or refused.
func (m *Machine) StartRecording(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateIdle && m.state != StateSpeaking {
		m.mu.Unlock()
		return
	}
	if m.reveal != nil {
		m.reveal.Stop()
		m.reveal = nil
	}
	m.turnSeq++
	seq := m.turnSeq
	m.turn = Turn{}
	m.state = StateRecording
	m.mu.Unlock()

	m.resources.ClearAudioResource()
	m.metrics.RecordTurnStart()
	m.emit(EventState, "")

	sess, err := m.recorder.Begin(ctx)
	if err != nil {
		m.metrics.RecordError("device_error", "capture")
		m.failTurn(seq, errMicrophone)
		return
	}

	m.mu.Lock()
	if m.turnSeq != seq || m.state != StateRecording {
		// Superseded while awaiting the grant
		m.mu.Unlock()
		m.recorder.End(sess)
		return
	}
	m.captureSess = sess
	m.mu.Unlock()
}

// StopRecording finalizes the capture and runs the rest of the turn.
// Valid only from Recording; anywhere else it is a guarded no-op.
func (m *Machine) StopRecording(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateRecording {
		m.mu.Unlock()
		return
	}
	sess := m.captureSess
	m.captureSess = nil
	seq := m.turnSeq
	m.state = StateProcessing
	m.mu.Unlock()
	m.emit(EventState, "")

	asset := m.recorder.End(sess)
	if sess == nil {
		// Stop raced the microphone grant; nothing was captured.
		m.resources.ReleaseMicrophone()
	}
	m.metrics.RecordAudioBytes("captured", int64(len(asset.Bytes)))

	go m.processTurn(ctx, asset, seq)
}

// processTurn runs transcription, the coach reveal and synthesis for
// one turn, bailing out wherever the turn has been superseded.
func (m *Machine) processTurn(ctx context.Context, asset capture.Asset, seq int) {
	m.metrics.RecordTranscriptionStart()
	result, err := m.transcriber.Submit(ctx, asset, m.SessionID())
	if err != nil {
		m.metrics.RecordTranscriptionEnd(false)
		m.metrics.RecordError("transcription_error", "transcribe")
		m.failTurn(seq, errTranscription)
		return
	}
	m.metrics.RecordTranscriptionEnd(true)

	m.mu.Lock()
	if m.turnSeq != seq || m.state != StateProcessing {
		m.mu.Unlock()
		return
	}
	// A backend-issued token replaces the current one; the client never
	// invents or regenerates its own.
	if result.SessionID != "" && result.SessionID != m.sessionID {
		m.sessionID = result.SessionID
	}
	m.turn.UserTranscript = result.Transcript
	m.turn.IsFinal = true
	m.turn.AudioHandle = nil
	m.turn.IsCoachStreaming = true
	m.state = StateSpeaking
	reveal := m.producer.Produce(result.Transcript)
	m.reveal = reveal
	m.mu.Unlock()

	m.resources.ClearAudioResource()
	m.emit(EventTranscript, "")
	m.emit(EventState, "")

	m.runReveal(ctx, reveal, seq)
}

// runReveal consumes the reply sequence, then settles the turn with a
// synthesis attempt.
func (m *Machine) runReveal(ctx context.Context, reveal *coach.Reveal, seq int) {
	for delta := range reveal.Deltas() {
		m.mu.Lock()
		if m.turnSeq != seq {
			m.mu.Unlock()
			return
		}
		m.turn.CoachText += delta
		m.mu.Unlock()
		m.emit(EventToken, delta)
	}
	<-reveal.Done()

	if !reveal.Completed() {
		// Cancelled: partial output is discarded with the turn.
		return
	}

	m.mu.Lock()
	if m.turnSeq != seq {
		m.mu.Unlock()
		return
	}
	seed := fmt.Sprintf("%s:%d", m.sessionID, seq)
	m.meta = coach.Classify(m.turn.UserTranscript, m.lastModes, seed)
	m.lastModes = append(m.lastModes, m.meta.Mode)
	if len(m.lastModes) > 5 {
		m.lastModes = m.lastModes[len(m.lastModes)-5:]
	}
	m.turn.IsCoachStreaming = false
	sessionID := m.sessionID
	m.mu.Unlock()
	m.emit(EventMeta, "")

	m.settleSynthesis(ctx, reveal.Text(), sessionID, seq)
}

// settleSynthesis runs the synthesis request and moves the turn to Idle.
// Synthesis failures are non-fatal: the text stays, only audio is
// omitted.
func (m *Machine) settleSynthesis(ctx context.Context, text, sessionID string, seq int) {
	m.metrics.RecordSynthesisStart()
	data, contentType, err := m.synthesizer.Synthesize(ctx, text, sessionID)
	m.metrics.RecordSynthesisEnd(err == nil)

	m.mu.Lock()
	if m.turnSeq != seq {
		// Superseded: a late result must never reach a newer turn.
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.metrics.RecordError("synthesis_error", "synthesize")
		m.logger.Warn().Err(err).Msg("Synthesis failed, keeping transcript only")
		m.turn.ErrorMessage = errSynthesisSoft
	} else {
		m.metrics.RecordAudioBytes("synthesized", int64(len(data)))
		m.turn.AudioHandle = m.resources.SetAudioResource(data, contentType)
	}
	m.state = StateIdle
	m.reveal = nil
	m.mu.Unlock()

	m.metrics.RecordTurnEnd()
	m.emit(EventFinal, "")
	m.emit(EventState, "")
}

// failTurn surfaces a user-facing error and returns the machine to Idle.
func (m *Machine) failTurn(seq int, message string) {
	m.mu.Lock()
	if m.turnSeq != seq {
		m.mu.Unlock()
		return
	}
	m.turn.ErrorMessage = message
	m.turn.IsCoachStreaming = false
	m.state = StateIdle
	m.captureSess = nil
	m.reveal = nil
	m.mu.Unlock()

	m.metrics.RecordTurnEnd()
	m.emit(EventError, "")
	m.emit(EventState, "")
}

// SetEnabled forces the machine into or out of Disabled. Disabling
// supersedes any in-flight turn and releases all transient resources;
// Disabled accepts no user-initiated transitions.
func (m *Machine) SetEnabled(enabled bool) {
	if enabled {
		m.mu.Lock()
		if m.state != StateDisabled {
			m.mu.Unlock()
			return
		}
		m.state = StateIdle
		m.turn = Turn{}
		m.mu.Unlock()
		m.emit(EventState, "")
		return
	}

	m.mu.Lock()
	if m.state == StateDisabled {
		m.mu.Unlock()
		return
	}
	if m.reveal != nil {
		m.reveal.Stop()
		m.reveal = nil
	}
	sess := m.captureSess
	m.captureSess = nil
	m.turnSeq++
	m.state = StateDisabled
	m.mu.Unlock()

	if sess != nil {
		m.recorder.End(sess)
	} else {
		m.resources.ReleaseMicrophone()
	}
	m.resources.ClearAudioResource()
	m.emit(EventState, "")
}

// Shutdown tears the session down, superseding any in-flight work and
// releasing every held resource.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	if m.reveal != nil {
		m.reveal.Stop()
		m.reveal = nil
	}
	sess := m.captureSess
	m.captureSess = nil
	m.turnSeq++
	m.mu.Unlock()

	if sess != nil {
		m.recorder.End(sess)
	}
	m.resources.Shutdown()
	m.metrics.RecordSessionEnd()
}

func (m *Machine) emit(t EventType, delta string) {
	m.mu.Lock()
	listener := m.listener
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if listener != nil {
		listener(Event{Type: t, Snapshot: snap, Delta: delta})
	}
}
