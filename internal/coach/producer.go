package coach

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultReply = "I hear you. Taking time for guidance is an act of care. What feels most present for you right now?"

const safetyReply = "I'm really sorry you're going through this. I can't help with self-harm. " +
	"If you're in the US, you can call or text 988 (Suicide and Crisis Lifeline). " +
	"If you are in immediate danger, call 911 or your local emergency number. " +
	"If you can, reach out to someone you trust and stay with them."

// Producer generates coach replies as a lazy character sequence revealed
// at a fixed cadence. Replies are mocked pending a real generation
// transport; the reveal contract is what the state machine depends on.
type Producer struct {
	interval time.Duration
	logger   zerolog.Logger
}

// NewProducer creates a producer with the given reveal cadence.
func NewProducer(interval time.Duration, logger zerolog.Logger) *Producer {
	return &Producer{interval: interval, logger: logger}
}

// ReplyFor returns the full reply text for a transcript. A high-risk
// transcript always gets the safety reply.
func (p *Producer) ReplyFor(transcript string) string {
	if RiskLevel(transcript) == "high" {
		return safetyReply
	}
	return defaultReply
}

// Produce starts revealing the reply for the transcript. Each invocation
// yields a fresh Reveal; a Reveal is not restartable.
func (p *Producer) Produce(transcript string) *Reveal {
	r := &Reveal{
		text:   p.ReplyFor(transcript),
		deltas: make(chan string),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go r.run(p.interval)
	return r
}

// Reveal is one in-flight reply sequence: a finite stream of character
// deltas. Stop halts it and discards the remainder (cancel-and-discard);
// Done closes either way, and Completed distinguishes exhaustion from
// cancellation.
type Reveal struct {
	text   string
	deltas chan string
	done   chan struct{}
	stop   chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	complete bool
}

// Deltas yields the reply one character at a time, in order. The channel
// closes when the sequence ends or is stopped.
func (r *Reveal) Deltas() <-chan string {
	return r.deltas
}

// Done closes when the sequence has ended, by exhaustion or by Stop.
func (r *Reveal) Done() <-chan struct{} {
	return r.done
}

// Text returns the full reply text the sequence reveals.
func (r *Reveal) Text() string {
	return r.text
}

// Completed reports whether the sequence ran to exhaustion.
func (r *Reveal) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Stop halts the sequence and discards its remaining output. Idempotent.
func (r *Reveal) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

func (r *Reveal) run(interval time.Duration) {
	defer close(r.done)
	defer close(r.deltas)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, ch := range r.text {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		select {
		case <-r.stop:
			return
		case r.deltas <- string(ch):
		}
	}

	r.mu.Lock()
	r.complete = true
	r.mu.Unlock()
}
