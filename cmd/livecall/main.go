// Command livecall talks to the advisor from a terminal through the local
// PulseAudio microphone and speakers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/adapters/credentials"
	"github.com/mpkisan/kisan-ai/server/adapters/llm"
	"github.com/mpkisan/kisan-ai/server/adapters/pulse"
	"github.com/mpkisan/kisan-ai/server/adapters/tts"
	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/config"
	"github.com/mpkisan/kisan-ai/server/internal/live"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
	"github.com/mpkisan/kisan-ai/server/internal/playback"
	"github.com/mpkisan/kisan-ai/server/internal/retry"
	"github.com/mpkisan/kisan-ai/server/usecase"
)

func main() {
	var (
		envFile = flag.String("env", "", "env file with GEMINI_API_KEY (default .env)")
		lang    = flag.String("lang", "en", "reply language: en or hi")
		say     = flag.String("say", "", "speak this text once instead of starting a live call")
		source  = flag.String("source", "", "PulseAudio source to capture from")
	)
	flag.Parse()

	if err := run(*envFile, entities.ParseLanguage(*lang), *say, *source); err != nil {
		fmt.Fprintln(os.Stderr, "livecall:", err)
		os.Exit(1)
	}
}

func run(envFile string, lang entities.Language, say, source string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("kisan_livecall")
	keys := credentials.NewKeyStore(cfg.GeminiAPIKey)
	gemini, err := llm.NewGeminiLLM(cfg.Gemini, keys, logger)
	if err != nil {
		return err
	}
	device := pulse.NewDevice(pulse.Config{SourceID: source}, logger)

	if say != "" {
		return speakOnce(ctx, cfg, gemini, keys, device, say, metrics, logger)
	}
	return liveCall(ctx, cfg, gemini, device, lang, metrics, logger)
}

// speakOnce synthesizes text and plays it on the default speakers.
func speakOnce(ctx context.Context, cfg config.Config, gemini *llm.GeminiLLM, keys *credentials.KeyStore, device *pulse.Device, text string, metrics *observability.Metrics, logger *zap.Logger) error {
	selector, err := credentials.NewDotenvSelector(cfg.EnvFile, keys, logger)
	if err != nil {
		return err
	}
	invoker, err := retry.NewInvoker(cfg.Retry, selector, metrics, logger)
	if err != nil {
		return err
	}

	var speech repositories.TextToSpeech
	if cfg.TTSProvider == config.TTSProviderElevenLabs {
		speech, err = tts.NewElevenLabsTTS(cfg.ElevenLabs, logger)
	} else {
		speech, err = tts.NewGeminiTTS(tts.GeminiTTSConfig{}, gemini, logger)
	}
	if err != nil {
		return err
	}

	advisor, err := usecase.NewAdvisor(gemini, gemini, speech, invoker, logger)
	if err != nil {
		return err
	}
	encoded, err := advisor.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	output, err := device.OpenOutput(ctx, entities.PlaybackSampleRate)
	if err != nil {
		return err
	}
	defer output.Close()

	player, err := playback.NewPlayer(cfg.Playback, output, metrics, logger)
	if err != nil {
		return err
	}
	src, err := player.Play(ctx, encoded)
	if err != nil {
		return err
	}

	select {
	case <-src.Done():
	case <-ctx.Done():
		player.Stop()
	}
	return nil
}

// liveCall runs one live session until the remote side closes it or the
// user presses Ctrl-C.
func liveCall(ctx context.Context, cfg config.Config, connector repositories.LiveConnector, device repositories.AudioDevice, lang entities.Language, metrics *observability.Metrics, logger *zap.Logger) error {
	closed := make(chan struct{})
	var failure error

	manager, err := live.NewManager(live.Config{
		Language:          lang,
		SystemInstruction: usecase.LiveInstruction(lang),
		OutboundQueueSize: cfg.LiveOutboundQueue,
	}, connector, device, live.Hooks{
		OnState: func(state entities.LiveState) {
			fmt.Fprintf(os.Stderr, "[%s]\n", state)
			if state == entities.LiveStateClosed {
				close(closed)
			}
		},
		OnError: func(err error) { failure = err },
	}, metrics, logger)
	if err != nil {
		return err
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Speak now. Press Ctrl-C to hang up.")

	select {
	case <-closed:
		return failure
	case <-ctx.Done():
		return manager.Stop()
	}
}
