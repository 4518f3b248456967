package repositories

import "context"

// TextToSpeech streams synthesized speech as raw PCM chunks.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
}
