package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

// ErrNoSpeech is returned when recognition finds nothing to transcribe.
var ErrNoSpeech = errors.New("no speech detected in audio")

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleSpeechToText implements SpeechToText with Google Cloud synchronous
// recognition. Spoken farm questions are short, so one request per question.
type GoogleSpeechToText struct {
	recognize recognizeFunc
	close     func() error
	logger    *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText dials the Speech API with application default
// credentials (GOOGLE_APPLICATION_CREDENTIALS).
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		close:  client.Close,
		logger: logger,
	}, nil
}

func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return "", err
	}

	rc := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(config.SampleRate),
		LanguageCode:               config.Language,
		EnableAutomaticPunctuation: true,
	}
	// Farmers mix Hindi and English; let the service pick between them.
	if config.Language == "hi-IN" {
		rc.AlternativeLanguageCodes = []string{"en-IN"}
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: rc,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to recognize speech: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 && alts[0].GetTranscript() != "" {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	if len(parts) == 0 {
		return "", ErrNoSpeech
	}
	transcript := strings.Join(parts, " ")
	g.logger.Info("Transcribed audio",
		zap.String("language", config.Language),
		zap.Int("audioBytes", len(audioData)),
		zap.Int("transcriptLength", len(transcript)))
	return transcript, nil
}

func (g *GoogleSpeechToText) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "", "WAV", "LINEAR16", "PCM16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported audio encoding: %s", encoding)
	}
}
