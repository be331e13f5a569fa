package capture

import (
	"context"

	"github.com/rs/zerolog"
)

// Controller drives a single audio capture: stream acquisition, encoding
// selection, ordered chunk accrual and finalization into one Asset.
type Controller struct {
	mic        Microphone
	candidates []string
	logger     zerolog.Logger

	silenceThreshold float64
	silenceChunks    int
	autoStop         func()
}

// NewController creates a capture controller on top of a microphone owner.
func NewController(mic Microphone, logger zerolog.Logger) *Controller {
	return &Controller{
		mic:        mic,
		candidates: DefaultMimeCandidates,
		logger:     logger,
	}
}

// SetMimeCandidates overrides the descending-preference encoding list.
func (c *Controller) SetMimeCandidates(candidates []string) {
	c.candidates = candidates
}

// EnableSilenceAutoStop arms silence detection for subsequent captures.
// onStop is invoked (on its own goroutine) when the limit is reached.
func (c *Controller) EnableSilenceAutoStop(threshold float64, chunks int, onStop func()) {
	c.silenceThreshold = threshold
	c.silenceChunks = chunks
	c.autoStop = onStop
}

// Session is one in-progress capture.
type Session struct {
	stream   *Stream
	buffer   *ChunkBuffer
	mimeType string
	done     chan struct{}
}

// MimeType returns the encoding selected for this capture.
func (s *Session) MimeType() string {
	return s.mimeType
}

// Begin acquires the microphone, selects the first mutually supported
// encoding and starts accumulating chunks in arrival order.
func (c *Controller) Begin(ctx context.Context) (*Session, error) {
	stream, err := c.mic.AcquireMicrophone(ctx)
	if err != nil {
		return nil, err
	}

	session := &Session{
		stream:   stream,
		buffer:   NewChunkBuffer(),
		mimeType: SelectMimeType(stream.MimeTypes(), c.candidates),
		done:     make(chan struct{}),
	}

	c.logger.Debug().
		Str("mime_type", session.mimeType).
		Msg("Capture started")

	go c.pump(session)
	return session, nil
}

// pump appends chunks as they arrive until the stream's channel closes.
func (c *Controller) pump(session *Session) {
	defer close(session.done)

	var detector *SilenceDetector
	if c.autoStop != nil && c.silenceChunks > 0 {
		detector = NewSilenceDetector(c.silenceThreshold, c.silenceChunks)
	}

	for chunk := range session.stream.Chunks() {
		session.buffer.Append(chunk)

		if detector != nil && detector.Observe(chunk) {
			c.logger.Debug().Msg("Sustained silence, requesting auto-stop")
			detector = nil
			// On a goroutine: the stop path closes the stream and waits
			// for this pump to drain.
			go c.autoStop()
		}
	}
}

// End stops accrual, waits for all arrived chunks to be appended,
// releases the stream and returns the finalized asset. A session with
// zero captured chunks yields a valid empty asset.
func (c *Controller) End(session *Session) Asset {
	if session == nil {
		return Asset{}
	}

	if err := session.stream.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Error closing capture stream")
	}
	<-session.done
	c.mic.ReleaseMicrophone()

	asset := Asset{
		Bytes:    session.buffer.Finalize(),
		MimeType: session.mimeType,
	}

	c.logger.Debug().
		Int("bytes", len(asset.Bytes)).
		Str("mime_type", asset.MimeType).
		Msg("Capture finalized")

	return asset
}
