package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

const (
	defaultGeminiTTSModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice    = "Kore"
)

// ErrNoAudio is returned when the speech model answers without audio.
var ErrNoAudio = errors.New("speech model returned no audio")

type GeminiTTSConfig struct {
	Model string
	Voice string
}

// GeminiTTS synthesizes speech through a generative model with audio output.
// The model returns 24 kHz mono PCM in one piece, delivered as a single chunk.
type GeminiTTS struct {
	config GeminiTTSConfig
	model  repositories.GenerativeModel
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*GeminiTTS)(nil)

func NewGeminiTTS(config GeminiTTSConfig, model repositories.GenerativeModel, logger *zap.Logger) (*GeminiTTS, error) {
	if model == nil {
		return nil, fmt.Errorf("generative model is required")
	}
	if config.Model == "" {
		config.Model = defaultGeminiTTSModel
		logger.Info("Using default speech model", zap.String("model", config.Model))
	}
	if config.Voice == "" {
		config.Voice = defaultGeminiVoice
		logger.Info("Using default voice", zap.String("voice", config.Voice))
	}
	return &GeminiTTS{config: config, model: model, logger: logger}, nil
}

func (g *GeminiTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	resp, err := g.model.Generate(ctx, entities.Envelope{
		Capability: entities.CapabilitySpeech,
		Model:      g.config.Model,
		Parts:      []entities.Part{entities.TextPart(text)},
		Options:    entities.GenerationOptions{AudioOutput: true, Voice: g.config.Voice},
	})
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, len(resp.Inline))
	for _, part := range resp.Inline {
		if strings.HasPrefix(part.MIMEType, "audio/") && len(part.Data) > 0 {
			out <- part.Data
		}
	}
	close(out)
	if len(out) == 0 {
		return nil, ErrNoAudio
	}
	return out, nil
}
