package capture

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const (
	micSampleRate = 16000
)

// PortAudioDevice captures from the default system microphone as 16 kHz
// mono PCM16. It advertises no container encodings, so captures fall
// through to the baseline default.
type PortAudioDevice struct {
	chunkFrames int
}

// NewPortAudioDevice creates a local microphone device emitting chunks of
// roughly chunkMS milliseconds.
func NewPortAudioDevice(chunkMS int) *PortAudioDevice {
	if chunkMS <= 0 {
		chunkMS = 100
	}
	return &PortAudioDevice{
		chunkFrames: micSampleRate * chunkMS / 1000,
	}
}

// Open initializes portaudio and starts reading from the default input
// stream. The returned stream's chunk channel closes after Close.
func (d *PortAudioDevice) Open(ctx context.Context) (*Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	buffer := make([]int16, d.chunkFrames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(micSampleRate), len(buffer), buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	chunks := make(chan []byte, 32)
	quit := make(chan struct{})

	go func() {
		defer func() {
			stream.Stop()
			stream.Close()
			portaudio.Terminate()
			close(chunks)
		}()

		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			default:
			}

			if err := stream.Read(); err != nil {
				return
			}

			chunk := pcm16ToBytes(buffer)
			select {
			case chunks <- chunk:
			case <-quit:
				return
			}
		}
	}()

	closeFn := func() error {
		close(quit)
		return nil
	}

	return NewStream(chunks, nil, closeFn), nil
}

func pcm16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
