package repositories

import (
	"context"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

// Microphone delivers captured audio as fixed-size float buffers in [-1, 1].
// Frames is closed once capture stops.
type Microphone interface {
	Frames() <-chan []float32
	Close() error
}

// PlaybackSource is one buffer scheduled on an AudioOutput.
type PlaybackSource interface {
	ID() string
	// Stop silences the source. Stopping twice is a no-op.
	Stop()
	// Done is closed when the source finished playing or was stopped.
	Done() <-chan struct{}
}

// AudioOutput is a playback timeline with its own clock in seconds.
type AudioOutput interface {
	CurrentTime() float64
	Schedule(buffer entities.AudioBuffer, at float64) (PlaybackSource, error)
	Close() error
}

// AudioDevice opens capture and playback contexts for a live session.
type AudioDevice interface {
	OpenMicrophone(ctx context.Context, sampleRate, frameSize int) (Microphone, error)
	OpenOutput(ctx context.Context, sampleRate int) (AudioOutput, error)
}
