package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts a complete recording to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sampleRate"`
	Encoding   string `json:"encoding"`
	// Language is a BCP-47 code such as "hi-IN".
	Language string `json:"language"`
}
