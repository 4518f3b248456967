// Package config collects the per-component configs from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mpkisan/kisan-ai/server/adapters/llm"
	"github.com/mpkisan/kisan-ai/server/adapters/tts"
	"github.com/mpkisan/kisan-ai/server/internal/auth"
	"github.com/mpkisan/kisan-ai/server/internal/playback"
	"github.com/mpkisan/kisan-ai/server/internal/retry"
)

const (
	defaultPort      = "8080"
	defaultEnvFile   = ".env"
	defaultLiveQueue = 8

	TTSProviderGemini     = "gemini"
	TTSProviderElevenLabs = "elevenlabs"
)

type Config struct {
	Port string
	Env  string
	// EnvFile is where the .env credential selector re-reads the API key from.
	EnvFile      string
	GeminiAPIKey string
	// Mock swaps the Gemini and speech adapters for canned local ones.
	Mock bool

	TTSProvider       string
	LiveOutboundQueue int

	Retry      retry.Policy
	Gemini     llm.GeminiConfig
	ElevenLabs tts.ElevenLabsConfig
	Playback   playback.Config
	Auth       auth.Config
}

func (c Config) Development() bool {
	return c.Env == "development"
}

// Load reads envFile into the process environment when it exists, then
// builds the config. Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = os.Getenv("GEMINI_ENV_FILE")
	}
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	config := FromEnv()
	config.EnvFile = envFile
	if config.Development() && len(config.Auth.Secret) == 0 {
		config.Auth.Secret = []byte(uuid.NewString())
	}
	return config, nil
}

// FromEnv builds the config from the process environment only.
func FromEnv() Config {
	config := Config{
		Port:              envOr("PORT", defaultPort),
		Env:               envOr("APP_ENV", "production"),
		EnvFile:           os.Getenv("GEMINI_ENV_FILE"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		Mock:              envBool("GEMINI_MOCK"),
		TTSProvider:       strings.ToLower(envOr("TTS_PROVIDER", TTSProviderGemini)),
		LiveOutboundQueue: envInt("LIVE_OUTBOUND_QUEUE", defaultLiveQueue),
		Retry:             retryPolicyFromEnv(),
		Gemini:            llm.NewGeminiConfigFromEnv(),
		ElevenLabs:        tts.NewElevenLabsConfigFromEnv(),
		Playback:          playback.NewConfigFromEnv(),
		Auth:              auth.NewConfigFromEnv(),
	}
	return config
}

func retryPolicyFromEnv() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = envInt("RETRY_MAX_ATTEMPTS", policy.MaxAttempts)
	if d, err := time.ParseDuration(os.Getenv("RETRY_INITIAL_DELAY")); err == nil {
		policy.InitialDelay = d
	}
	if v, err := strconv.ParseFloat(os.Getenv("RETRY_BACKOFF_MULTIPLIER"), 64); err == nil {
		policy.BackoffMultiplier = v
	}
	return policy
}

// Validate validates the Config
func Validate(config Config) error {
	if _, err := strconv.Atoi(config.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", config.Port)
	}
	if err := retry.ValidatePolicy(config.Retry); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	if config.LiveOutboundQueue < 1 {
		return fmt.Errorf("live outbound queue must be at least 1, got %d", config.LiveOutboundQueue)
	}
	if err := llm.ValidateGeminiConfig(config.Gemini); err != nil {
		return err
	}
	if err := playback.ValidateConfig(config.Playback); err != nil {
		return err
	}
	if err := auth.ValidateConfig(config.Auth); err != nil {
		return err
	}
	switch config.TTSProvider {
	case TTSProviderGemini:
	case TTSProviderElevenLabs:
		if err := tts.ValidateElevenLabsConfig(config.ElevenLabs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown TTS provider %q", config.TTSProvider)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
