package capture

import (
	"encoding/binary"
	"testing"
)

func pcmChunk(amplitude int16, samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(amplitude))
	}
	return out
}

func TestRMSEnergy(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("Expected 0 energy for empty input, got %f", got)
	}

	// Constant amplitude: RMS equals the amplitude
	got := RMSEnergy(pcmChunk(1000, 160))
	if got < 999.0 || got > 1001.0 {
		t.Errorf("Expected RMS near 1000, got %f", got)
	}
}

func TestSilenceDetector_FiresAfterLimit(t *testing.T) {
	d := NewSilenceDetector(500.0, 3)

	// Speech first
	if d.Observe(pcmChunk(2000, 160)) {
		t.Error("Expected no fire during speech")
	}

	// Two silent chunks: not yet
	if d.Observe(pcmChunk(10, 160)) {
		t.Error("Expected no fire at 1 silent chunk")
	}
	if d.Observe(pcmChunk(10, 160)) {
		t.Error("Expected no fire at 2 silent chunks")
	}

	// Third silent chunk reaches the limit
	if !d.Observe(pcmChunk(10, 160)) {
		t.Error("Expected fire at 3 silent chunks")
	}
}

func TestSilenceDetector_NoFireBeforeSpeech(t *testing.T) {
	d := NewSilenceDetector(500.0, 2)

	for i := 0; i < 10; i++ {
		if d.Observe(pcmChunk(10, 160)) {
			t.Fatal("Expected no fire before any speech was heard")
		}
	}
}

func TestSilenceDetector_SpeechResetsCounter(t *testing.T) {
	d := NewSilenceDetector(500.0, 2)

	d.Observe(pcmChunk(2000, 160))
	d.Observe(pcmChunk(10, 160))
	// Speech again resets the silent run
	d.Observe(pcmChunk(2000, 160))
	if d.Observe(pcmChunk(10, 160)) {
		t.Error("Expected counter reset by speech, got fire at 1 silent chunk")
	}
	if !d.Observe(pcmChunk(10, 160)) {
		t.Error("Expected fire at 2 silent chunks")
	}
}
