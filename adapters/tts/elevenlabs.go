package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"
	defaultChunkSize    = 4800 // 100 ms of 24 kHz mono PCM16
	defaultOutputFormat = "pcm_24000"
	defaultModelID      = "eleven_multilingual_v2"
	defaultStability    = 0.5
	defaultClarity      = 0.75
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter.
// APIKey is required; everything else falls back to a default. OutputFormat
// must stay a 24 kHz PCM format for one-shot playback to work.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
}

// ElevenLabsTTS implements TextToSpeech using the Eleven Labs streaming API.
type ElevenLabsTTS struct {
	config ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	VoiceSettings          elevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// HTTPError is a non-200 answer from the API. Its message carries the status
// code so rate limits are recognizable upstream.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("eleven labs returned %d: %s", e.StatusCode, e.Body)
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.ChunkSize < 0 || config.ChunkSize%2 != 0 {
		return fmt.Errorf("chunk size must be a positive even number, got %d", config.ChunkSize)
	}
	if config.OutputFormat != "" && !strings.HasPrefix(config.OutputFormat, "pcm_") {
		return fmt.Errorf("output format must be raw PCM, got %q", config.OutputFormat)
	}
	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
		logger.Info("Using default API base URL", zap.String("apiBaseURL", config.APIBaseURL))
	}
	if config.VoiceID == "" {
		config.VoiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", config.VoiceID))
	}
	if config.ModelID == "" {
		config.ModelID = defaultModelID
		logger.Info("Using default model ID", zap.String("modelID", config.ModelID))
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultOutputFormat
		logger.Info("Using default output format", zap.String("outputFormat", config.OutputFormat))
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = defaultChunkSize
		logger.Info("Using default chunk size", zap.Int("chunkSize", config.ChunkSize))
	}
	if config.Stability == 0 {
		config.Stability = defaultStability
	}
	if config.Clarity == 0 {
		config.Clarity = defaultClarity
	}

	return &ElevenLabsTTS{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}, nil
}

// ConvertTextToSpeech starts a streaming synthesis. The HTTP status is checked
// before returning so rate limits and bad keys surface as errors; the body is
// then streamed as PCM chunks with an even byte count.
func (e *ElevenLabsTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:                   text,
		ModelID:                e.config.ModelID,
		ApplyTextNormalization: "auto",
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       e.config.Stability,
			SimilarityBoost: e.config.Clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.config.APIBaseURL, e.config.VoiceID, e.config.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "audio/pcm")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(errorBody)}
	}

	e.logger.Info("Streaming speech",
		zap.String("voiceID", e.config.VoiceID),
		zap.String("modelID", e.config.ModelID),
		zap.Int("textLength", len(text)))

	audioChan := make(chan []byte, 10)
	go e.stream(ctx, resp.Body, audioChan)
	return audioChan, nil
}

func (e *ElevenLabsTTS) stream(ctx context.Context, body io.ReadCloser, out chan<- []byte) {
	defer close(out)
	defer body.Close()

	totalBytes := 0
	buffer := make([]byte, e.config.ChunkSize)
	for {
		// ReadFull keeps chunks sample-aligned except possibly the last one.
		n, err := io.ReadFull(body, buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			totalBytes += n
			select {
			case out <- chunk:
			case <-ctx.Done():
				e.logger.Warn("Context cancelled while streaming speech")
				return
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			e.logger.Debug("Finished streaming speech", zap.Int("totalBytes", totalBytes))
			return
		}
		if err != nil {
			e.logger.Error("Error reading speech stream", zap.Error(err))
			return
		}
	}
}

// NewElevenLabsConfigFromEnv creates a new ElevenLabsConfig from environment variables
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	config := ElevenLabsConfig{
		APIKey:       os.Getenv("ELEVEN_LABS_API_KEY"),
		APIBaseURL:   os.Getenv("ELEVEN_LABS_API_BASE_URL"),
		VoiceID:      os.Getenv("ELEVEN_LABS_VOICE_ID"),
		ModelID:      os.Getenv("ELEVEN_LABS_MODEL_ID"),
		OutputFormat: os.Getenv("ELEVEN_LABS_OUTPUT_FORMAT"),
	}
	if v, err := strconv.Atoi(os.Getenv("ELEVEN_LABS_CHUNK_SIZE")); err == nil && v > 0 {
		config.ChunkSize = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("ELEVEN_LABS_STABILITY"), 64); err == nil && v >= 0 && v <= 1 {
		config.Stability = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("ELEVEN_LABS_CLARITY"), 64); err == nil && v >= 0 && v <= 1 {
		config.Clarity = v
	}
	return config
}
