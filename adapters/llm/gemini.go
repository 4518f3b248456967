package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/retry"
)

const (
	defaultTimeoutSeconds    = 120
	defaultVideoPollInterval = 5 * time.Second
)

// GeminiConfig holds the transport settings of the Gemini adapter. The API key
// itself comes from a CredentialSource so it can be swapped at runtime.
type GeminiConfig struct {
	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL           string
	TimeoutSeconds    int
	VideoPollInterval time.Duration
}

func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{BaseURL: os.Getenv("GEMINI_BASE_URL")}
	if v, err := strconv.Atoi(os.Getenv("GEMINI_TIMEOUT_SECONDS")); err == nil {
		config.TimeoutSeconds = v
	}
	return config
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	if config.VideoPollInterval < 0 {
		return fmt.Errorf("video poll interval must be positive, got %s", config.VideoPollInterval)
	}
	return nil
}

// GeminiLLM implements the generative model, video and live ports on the
// Gemini API. The genai client is rebuilt whenever the key version changes.
type GeminiLLM struct {
	config GeminiConfig
	source repositories.CredentialSource
	logger *zap.Logger

	mu      sync.Mutex
	client  *genai.Client
	version uint64
}

var (
	_ repositories.GenerativeModel = (*GeminiLLM)(nil)
	_ repositories.VideoGenerator  = (*GeminiLLM)(nil)
	_ repositories.LiveConnector   = (*GeminiLLM)(nil)
)

// NewGeminiLLM creates a new Gemini adapter.
func NewGeminiLLM(config GeminiConfig, source repositories.CredentialSource, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", config.TimeoutSeconds))
	}
	if config.VideoPollInterval == 0 {
		config.VideoPollInterval = defaultVideoPollInterval
		logger.Info("Using default video poll interval", zap.Duration("videoPollInterval", config.VideoPollInterval))
	}
	return &GeminiLLM{config: config, source: source, logger: logger}, nil
}

// genaiClient returns a client for the current key, rebuilding it after a
// credential re-selection.
func (g *GeminiLLM) genaiClient(ctx context.Context) (*genai.Client, error) {
	key, version := g.source.APIKey()
	if key == "" {
		return nil, retry.ErrMissingCredential
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil && g.version == version {
		return g.client, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if g.config.BaseURL != "" {
		cc.HTTPOptions.BaseURL = g.config.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if g.client != nil {
		g.logger.Info("Gemini client rebuilt for new API key", zap.Uint64("keyVersion", version))
	}
	g.client = client
	g.version = version
	return client, nil
}

// Generate sends one envelope through GenerateContent.
func (g *GeminiLLM) Generate(ctx context.Context, envelope entities.Envelope) (entities.GenerateResponse, error) {
	if err := envelope.Validate(); err != nil {
		return entities.GenerateResponse{}, err
	}
	client, err := g.genaiClient(ctx)
	if err != nil {
		return entities.GenerateResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, envelope.Model, toContents(envelope), toGenerateConfig(envelope))
	if err != nil {
		return entities.GenerateResponse{}, err
	}

	out := fromResponse(resp)
	g.logger.Debug("Generated content",
		zap.String("capability", string(envelope.Capability)),
		zap.String("model", envelope.Model),
		zap.Int("textLength", len(out.Text)),
		zap.Int("inlineParts", len(out.Inline)),
		zap.Int("sources", len(out.Sources)))
	return out, nil
}
