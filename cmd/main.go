package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/adapters/credentials"
	"github.com/mpkisan/kisan-ai/server/adapters/llm"
	"github.com/mpkisan/kisan-ai/server/adapters/stt"
	"github.com/mpkisan/kisan-ai/server/adapters/tts"
	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/api"
	"github.com/mpkisan/kisan-ai/server/internal/auth"
	"github.com/mpkisan/kisan-ai/server/internal/config"
	"github.com/mpkisan/kisan-ai/server/internal/live"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
	"github.com/mpkisan/kisan-ai/server/internal/retry"
	"github.com/mpkisan/kisan-ai/server/internal/websocket"
	"github.com/mpkisan/kisan-ai/server/usecase"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Development() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if err := config.Validate(cfg); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("kisan")

	// Credentials and the resilient invoker
	keys := credentials.NewKeyStore(cfg.GeminiAPIKey)
	selector, err := credentials.NewDotenvSelector(cfg.EnvFile, keys, logger)
	if err != nil {
		logger.Fatal("Failed to create credential selector", zap.Error(err))
	}
	invoker, err := retry.NewInvoker(cfg.Retry, selector, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to create invoker", zap.Error(err))
	}

	// Initialize adapters
	var (
		model        repositories.GenerativeModel
		video        repositories.VideoGenerator
		speechToText repositories.SpeechToText
		connector    repositories.LiveConnector
	)
	if cfg.Mock {
		logger.Warn("GEMINI_MOCK is set, serving canned responses")
		model, video = llm.MockModel{}, llm.MockModel{}
		speechToText = stt.NewMockSpeechToText(logger)
	} else {
		gemini, err := llm.NewGeminiLLM(cfg.Gemini, keys, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini adapter", zap.Error(err))
		}
		model, video, connector = gemini, gemini, gemini

		google, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			logger.Warn("Speech-to-text unavailable, voice chat disabled", zap.Error(err))
		} else {
			defer google.Close()
			speechToText = google
		}
	}

	var textToSpeech repositories.TextToSpeech
	switch cfg.TTSProvider {
	case config.TTSProviderElevenLabs:
		textToSpeech, err = tts.NewElevenLabsTTS(cfg.ElevenLabs, logger)
	default:
		textToSpeech, err = tts.NewGeminiTTS(tts.GeminiTTSConfig{}, model, logger)
	}
	if err != nil {
		logger.Fatal("Failed to create text-to-speech adapter", zap.Error(err))
	}

	// Initialize usecase services
	advisor, err := usecase.NewAdvisor(model, video, textToSpeech, invoker, logger)
	if err != nil {
		logger.Fatal("Failed to create advisor", zap.Error(err))
	}
	var conversation *usecase.ConversationService
	if speechToText != nil {
		conversation = usecase.NewConversationService(speechToText, advisor, logger)
	}

	issuer, err := auth.NewIssuer(cfg.Auth)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}

	deps := api.Dependencies{
		Advisor:      advisor,
		Conversation: conversation,
		Issuer:       issuer,
		Metrics:      metrics,
	}

	// Live voice calls need a real connector
	if connector != nil {
		hub := websocket.NewHub(connector, func(lang entities.Language) live.Config {
			return live.Config{
				Language:          lang,
				SystemInstruction: usecase.LiveInstruction(lang),
				OutboundQueueSize: cfg.LiveOutboundQueue,
			}
		}, metrics, logger)
		go hub.Run(ctx)

		cleanup := websocket.NewSessionCleanupService(hub, 0, 0, logger)
		cleanup.Start()
		defer cleanup.Stop()

		deps.Live = hub
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(api.RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("25M"))

	// Initialize API routes
	api.InitRoutes(e, deps, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.Bool("mock", cfg.Mock),
		zap.String("ttsProvider", cfg.TTSProvider),
		zap.Bool("live", connector != nil))

	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
