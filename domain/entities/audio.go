package entities

const (
	// CaptureSampleRate is the rate microphone audio is sent at.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate synthesized speech arrives at.
	PlaybackSampleRate = 24000
	// CaptureFrameSize is the number of samples per captured buffer.
	CaptureFrameSize = 4096

	// CaptureMIMEType is declared on every outbound media frame.
	CaptureMIMEType = "audio/pcm;rate=16000"
)

// AudioBuffer is planar float audio in [-1, 1), one slice per channel.
type AudioBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the per-channel sample count.
func (b AudioBuffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration is the playback length in seconds.
func (b AudioBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}
