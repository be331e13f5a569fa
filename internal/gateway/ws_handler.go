package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/attuneai/coach-gateway/internal/capture"
	"github.com/attuneai/coach-gateway/internal/coach"
	"github.com/attuneai/coach-gateway/internal/config"
	"github.com/attuneai/coach-gateway/internal/observability"
	"github.com/attuneai/coach-gateway/internal/resilience"
	"github.com/attuneai/coach-gateway/internal/resource"
	"github.com/attuneai/coach-gateway/internal/session"
	"github.com/attuneai/coach-gateway/internal/synthesize"
	"github.com/attuneai/coach-gateway/internal/transcribe"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin against the app's allowed hosts
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// clientMessage is a message from the browser client on the session stream.
type clientMessage struct {
	Event     string        `json:"event"`
	MimeTypes []string      `json:"mimeTypes,omitempty"` // start: encodings the client's recorder supports
	Media     *mediaPayload `json:"media,omitempty"`
}

// mediaPayload carries one base64 encoded audio chunk.
type mediaPayload struct {
	Payload string `json:"payload"`
}

// serverEvent is a message to the browser client.
type serverEvent struct {
	Event            string      `json:"event"`
	StreamID         string      `json:"streamId,omitempty"`
	State            string      `json:"state,omitempty"`
	SessionID        string      `json:"sessionId,omitempty"`
	Transcript       string      `json:"transcript,omitempty"`
	IsFinal          bool        `json:"isFinal,omitempty"`
	Delta            string      `json:"delta,omitempty"`
	CoachText        string      `json:"coachText,omitempty"`
	IsCoachStreaming bool        `json:"isCoachStreaming,omitempty"`
	AudioURL         string      `json:"audioUrl,omitempty"`
	Meta             *coach.Meta `json:"meta,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// wsDevice is the websocket-fed audio input device: chunks decoded from
// media events flow into whichever stream is currently open. It opens
// instantly, so microphone acquisition never blocks the read loop.
type wsDevice struct {
	mu        sync.Mutex
	mimeTypes []string
	chunks    chan []byte
}

func (d *wsDevice) setMimeTypes(mimeTypes []string) {
	d.mu.Lock()
	d.mimeTypes = mimeTypes
	d.mu.Unlock()
}

func (d *wsDevice) Open(ctx context.Context) (*capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan []byte, 100)
	d.chunks = ch
	return capture.NewStream(ch, d.mimeTypes, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.chunks == ch {
			d.chunks = nil
		}
		close(ch)
		return nil
	}), nil
}

// feed queues one decoded chunk for the open stream. Chunks arriving
// with no stream open, or when the stream is backed up, are dropped.
func (d *wsDevice) feed(chunk []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.chunks == nil {
		return false
	}
	select {
	case d.chunks <- chunk:
		return true
	default:
		return false
	}
}

// streamSession holds the state of one websocket session stream.
type streamSession struct {
	conn     *websocket.Conn
	streamID string
	device   *wsDevice
	machine  *session.Machine

	mu       sync.RWMutex
	isActive bool

	outbound chan []byte
	done     chan struct{}

	correlationID string
	logger        zerolog.Logger
}

// newStreamSession assembles the per-connection stack: resource manager,
// capture controller, backend clients, coach producer and state machine.
func newStreamSession(conn *websocket.Conn, cfg *config.Config) *streamSession {
	streamID := uuid.New().String()
	correlationID := observability.NewCorrelationID()
	logger := observability.WithSession(correlationID).
		With().
		Str("stream_id", streamID).
		Logger()

	device := &wsDevice{}
	resources := resource.NewManager(device, "/playback/"+streamID, logger)
	recorder := capture.NewController(resources, logger)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryInitialBackoff(),
		MaxBackoff:        resilience.DefaultRetryConfig().MaxBackoff,
		BackoffMultiplier: resilience.DefaultRetryConfig().BackoffMultiplier,
	}
	transcriber := transcribe.NewClient(cfg.BackendBase(), httpClient, retry, logger)
	synthesizer := synthesize.NewClient(cfg.BackendBase(), httpClient, retry, logger)
	producer := coach.NewProducer(cfg.CoachRevealInterval(), logger)
	metrics := observability.NewSessionMetrics(streamID)

	machine := session.NewMachine(resources, recorder, transcriber, synthesizer, producer, metrics, logger)

	s := &streamSession{
		conn:          conn,
		streamID:      streamID,
		device:        device,
		machine:       machine,
		isActive:      true,
		outbound:      make(chan []byte, 64),
		done:          make(chan struct{}),
		correlationID: correlationID,
		logger:        logger,
	}

	if cfg.SilenceAutoStop {
		recorder.EnableSilenceAutoStop(cfg.SilenceEnergyThreshold, cfg.SilenceChunks, func() {
			machine.StopRecording(context.Background())
		})
	}

	machine.SetListener(s.onMachineEvent)
	return s
}

// HandleSessionStream is the entry point for browser session streams.
func HandleSessionStream(cfg *config.Config, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		s := newStreamSession(conn, cfg)
		hub.Register(s.streamID, s.machine)
		defer hub.Unregister(s.streamID)

		s.logger.Info().Msg("Session stream connected")
		s.send(serverEvent{Event: "connected", StreamID: s.streamID, State: string(s.machine.State())})

		go s.writeLoop()
		s.readLoop()

		s.machine.Shutdown()
		close(s.done)
		s.logger.Info().Msg("Session stream ended")
	}
}

// readLoop handles all incoming websocket messages until the connection
// drops or the client sends stop-of-stream.
func (s *streamSession) readLoop() {
	for {
		s.mu.RLock()
		active := s.isActive
		s.mu.RUnlock()
		if !active {
			return
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			s.mu.Lock()
			s.isActive = false
			s.mu.Unlock()
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse client message")
			continue
		}

		switch msg.Event {
		case "start":
			if len(msg.MimeTypes) > 0 {
				s.device.setMimeTypes(msg.MimeTypes)
			}
			s.machine.StartRecording(context.Background())

		case "media":
			if msg.Media != nil {
				s.handleMediaEvent(msg.Media)
			}

		case "stop":
			s.machine.StopRecording(context.Background())

		case "enable":
			s.machine.SetEnabled(true)

		case "disable":
			s.machine.SetEnabled(false)

		default:
			s.logger.Warn().Str("event", msg.Event).Msg("Unknown client event")
		}
	}
}

// handleMediaEvent decodes one base64 audio chunk and feeds the capture
// stream.
func (s *streamSession) handleMediaEvent(media *mediaPayload) {
	if media.Payload == "" {
		s.logger.Warn().Msg("Media event missing payload")
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to decode base64 audio")
		return
	}

	if !s.device.feed(chunk) {
		s.logger.Warn().Msg("Dropping audio chunk, no capture stream open")
	}
}

// onMachineEvent translates state machine events into wire messages.
func (s *streamSession) onMachineEvent(e session.Event) {
	snap := e.Snapshot
	out := serverEvent{
		State:     string(snap.State),
		SessionID: snap.SessionID,
	}

	switch e.Type {
	case session.EventState:
		out.Event = "state"
	case session.EventTranscript:
		out.Event = "transcript"
		out.Transcript = snap.Turn.UserTranscript
		out.IsFinal = snap.Turn.IsFinal
	case session.EventToken:
		out.Event = "token"
		out.Delta = e.Delta
		out.CoachText = snap.Turn.CoachText
		out.IsCoachStreaming = snap.Turn.IsCoachStreaming
	case session.EventMeta:
		out.Event = "meta"
		meta := snap.Meta
		out.Meta = &meta
	case session.EventFinal:
		out.Event = "final"
		out.Transcript = snap.Turn.UserTranscript
		out.IsFinal = snap.Turn.IsFinal
		out.CoachText = snap.Turn.CoachText
		out.Error = snap.Turn.ErrorMessage
		if snap.Turn.AudioHandle != nil {
			out.AudioURL = snap.Turn.AudioHandle.URL()
		}
	case session.EventError:
		out.Event = "error"
		out.Error = snap.Turn.ErrorMessage
	default:
		return
	}

	s.send(out)
}

// send marshals and queues one outbound event. A backed up client loses
// events rather than stalling the state machine.
func (s *streamSession) send(event serverEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal server event")
		return
	}

	select {
	case s.outbound <- payload:
	default:
		s.logger.Warn().Str("event", event.Event).Msg("Outbound queue full, dropping event")
	}
}

func (s *streamSession) writeLoop() {
	for {
		select {
		case payload := <-s.outbound:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Warn().Err(err).Msg("WebSocket write error")
				return
			}
		case <-s.done:
			return
		}
	}
}
