package capture

import (
	"encoding/binary"
	"math"
)

// SilenceDetector flags sustained low-energy input so a recording can be
// stopped automatically. It only fires after speech has been heard at
// least once, so an open microphone in a quiet room does not end the
// turn immediately.
type SilenceDetector struct {
	threshold   float64
	limit       int
	silent      int
	heardSpeech bool
}

// NewSilenceDetector creates a detector that fires after limit
// consecutive chunks whose RMS energy is below threshold.
func NewSilenceDetector(threshold float64, limit int) *SilenceDetector {
	return &SilenceDetector{
		threshold: threshold,
		limit:     limit,
	}
}

// Observe consumes one PCM16 little-endian chunk and reports whether the
// sustained-silence limit has been reached.
func (d *SilenceDetector) Observe(chunk []byte) bool {
	if RMSEnergy(chunk) > d.threshold {
		d.silent = 0
		d.heardSpeech = true
		return false
	}

	if !d.heardSpeech {
		return false
	}

	d.silent++
	return d.silent >= d.limit
}

// Reset clears the detector state.
func (d *SilenceDetector) Reset() {
	d.silent = 0
	d.heardSpeech = false
}

// RMSEnergy computes the RMS energy of little-endian PCM16 samples.
func RMSEnergy(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}
