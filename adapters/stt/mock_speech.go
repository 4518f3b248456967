package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

// MockSpeechToText returns canned farmer questions for local runs without
// Google credentials.
type MockSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing mock speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", config.Language))

	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	if config.Language == "hi-IN" {
		switch {
		case len(audioData) > 32000:
			return "सोयाबीन में पीला मोज़ेक रोग से कैसे बचाव करें?", nil
		default:
			return "गेहूं की बुवाई कब करें?", nil
		}
	}
	switch {
	case len(audioData) > 32000:
		return "How do I protect soybean from yellow mosaic virus?", nil
	default:
		return "When should I sow wheat?", nil
	}
}
