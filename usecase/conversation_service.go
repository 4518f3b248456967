package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

// VoiceQuestion is a spoken chat message. Audio is raw PCM16 unless Encoding says otherwise.
type VoiceQuestion struct {
	Audio      []byte
	SampleRate int
	Encoding   string
	History    []entities.ChatMessage
	Language   entities.Language
	// Speak asks for the reply to be synthesized as well.
	Speak bool
}

// VoiceReply carries what was heard and what the advisor answered.
type VoiceReply struct {
	Transcript string
	Reply      entities.ChatMessage
}

// ConversationService orchestrates the voice chat flow: speech to text,
// a chat turn, then optional speech synthesis of the reply.
type ConversationService struct {
	speechToText repositories.SpeechToText
	advisor      *Advisor
	logger       *zap.Logger
}

func NewConversationService(stt repositories.SpeechToText, advisor *Advisor, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		speechToText: stt,
		advisor:      advisor,
		logger:       logger,
	}
}

func speechLanguage(lang entities.Language) string {
	if lang == entities.LanguageHindi {
		return "hi-IN"
	}
	return "en-IN"
}

// Ask transcribes the question and answers it. A synthesis failure still
// returns the text reply; the error is logged.
func (s *ConversationService) Ask(ctx context.Context, q VoiceQuestion) (VoiceReply, error) {
	if len(q.Audio) == 0 {
		return VoiceReply{}, fmt.Errorf("%w: audio is required", ErrInvalidInput)
	}
	sampleRate := q.SampleRate
	if sampleRate == 0 {
		sampleRate = entities.CaptureSampleRate
	}

	transcript, err := s.speechToText.TranscribeAudio(ctx, q.Audio, repositories.AudioConfig{
		SampleRate: sampleRate,
		Encoding:   q.Encoding,
		Language:   speechLanguage(q.Language),
	})
	if err != nil {
		return VoiceReply{}, fmt.Errorf("failed to transcribe question: %w", err)
	}
	s.logger.Info("Voice question transcribed",
		zap.String("language", string(q.Language)),
		zap.Int("transcriptLength", len(transcript)))

	reply, err := s.advisor.Chat(ctx, ChatTurn{History: q.History, Message: transcript, Language: q.Language})
	if err != nil {
		return VoiceReply{}, err
	}

	if q.Speak {
		audio, err := s.advisor.Synthesize(ctx, reply.Text)
		if err != nil {
			s.logger.Warn("Failed to synthesize reply", zap.Error(err))
		} else {
			reply.Audio = audio
		}
	}
	return VoiceReply{Transcript: transcript, Reply: reply}, nil
}
