// Package playback plays a single synthesized reply outside of any live session.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
)

// Overlap decides what happens to a reply that is still playing when the next one starts.
type Overlap string

const (
	// OverlapAllow lets replies play over each other.
	OverlapAllow Overlap = "allow"
	// OverlapInterrupt stops the previous reply first.
	OverlapInterrupt Overlap = "interrupt"
)

var ErrEmptyPayload = errors.New("speech payload is empty")

type Config struct {
	Overlap Overlap
}

func NewConfigFromEnv() Config {
	return Config{Overlap: Overlap(os.Getenv("PLAYBACK_OVERLAP"))}
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	switch config.Overlap {
	case "", OverlapAllow, OverlapInterrupt:
		return nil
	}
	return fmt.Errorf("unknown playback overlap policy %q", config.Overlap)
}

// Player decodes base64 PCM (24 kHz mono) and starts it on the output right away.
type Player struct {
	config  Config
	output  repositories.AudioOutput
	metrics *observability.Metrics
	logger  *zap.Logger

	mu   sync.Mutex
	last repositories.PlaybackSource
}

func NewPlayer(config Config, output repositories.AudioOutput, metrics *observability.Metrics, logger *zap.Logger) (*Player, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if config.Overlap == "" {
		config.Overlap = OverlapAllow
		logger.Info("Using default playback overlap policy", zap.String("overlap", string(config.Overlap)))
	}
	return &Player{config: config, output: output, metrics: metrics, logger: logger}, nil
}

// Play decodes encoded and schedules it at the output's current time.
func (p *Player) Play(ctx context.Context, encoded string) (repositories.PlaybackSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if encoded == "" {
		p.metrics.OneShot("empty")
		return nil, ErrEmptyPayload
	}
	pcm, err := audio.Decode(encoded)
	if err != nil {
		p.metrics.OneShot("invalid")
		return nil, err
	}
	buf, err := audio.PCMToBuffer(pcm, entities.PlaybackSampleRate, 1)
	if err != nil {
		p.metrics.OneShot("invalid")
		return nil, fmt.Errorf("failed to read speech payload: %w", err)
	}
	if buf.Frames() == 0 {
		p.metrics.OneShot("empty")
		return nil, ErrEmptyPayload
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.Overlap == OverlapInterrupt && p.last != nil {
		p.last.Stop()
		p.last = nil
	}
	src, err := p.output.Schedule(buf, p.output.CurrentTime())
	if err != nil {
		p.metrics.OneShot("failed")
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}
	p.last = src
	p.metrics.OneShot("played")
	p.logger.Debug("Playing speech reply",
		zap.String("sourceID", src.ID()),
		zap.Float64("duration", buf.Duration()),
		zap.String("overlap", string(p.config.Overlap)))
	return src, nil
}

// Stop silences the most recent reply, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != nil {
		p.last.Stop()
		p.last = nil
	}
}
