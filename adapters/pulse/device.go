// Package pulse opens PulseAudio capture and playback for terminal live calls.
package pulse

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
)

const (
	defaultAppName = "kisan-ai"
	// 20ms fragments keep capture latency low without flooding the framer.
	fragmentMillis = 20
)

type Config struct {
	AppName string
	// SourceID selects a capture source; empty means the server default.
	SourceID string
}

// Device implements AudioDevice on the local PulseAudio server.
type Device struct {
	config Config
	logger *zap.Logger
}

var _ repositories.AudioDevice = (*Device)(nil)

func NewDevice(config Config, logger *zap.Logger) *Device {
	if config.AppName == "" {
		config.AppName = defaultAppName
	}
	return &Device{config: config, logger: logger}
}

func (d *Device) newClient(icon string) (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(d.config.AppName),
		pulse.ClientApplicationIconName(icon),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// microphone streams 16-bit mono capture as float frames of a fixed size.
type microphone struct {
	client *pulse.Client
	stream *pulse.RecordStream
	framer *audio.Framer
	frames chan []float32
	logger *zap.Logger

	mu      sync.Mutex
	stopped bool
	dropped int
}

func (d *Device) OpenMicrophone(ctx context.Context, sampleRate, frameSize int) (repositories.Microphone, error) {
	client, err := d.newClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	var source *pulse.Source
	if d.config.SourceID != "" {
		source, err = client.SourceByID(d.config.SourceID)
	} else {
		source, err = client.DefaultSource()
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve capture source: %w", err)
	}

	mic := &microphone{
		client: client,
		framer: audio.NewFramer(frameSize),
		frames: make(chan []float32, 32),
		logger: d.logger,
	}

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(mic.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(uint32(sampleRate*2*fragmentMillis/1000)),
		pulse.RecordMediaName("kisan-ai live call"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	mic.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = mic.Close()
	}()

	d.logger.Info("Microphone opened",
		zap.String("source", source.ID()),
		zap.Int("sampleRate", sampleRate),
		zap.Int("frameSize", frameSize))
	return mic, nil
}

func (m *microphone) Frames() <-chan []float32 {
	return m.frames
}

func (m *microphone) onPCM(buffer []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return 0, io.EOF
	}
	for _, frame := range m.framer.Push(audio.PCM16ToFloat(buffer)) {
		select {
		case m.frames <- frame:
		default:
			m.dropped++
		}
	}
	return len(buffer), nil
}

func (m *microphone) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	dropped := m.dropped
	m.mu.Unlock()

	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
	}
	m.client.Close()
	close(m.frames)

	if dropped > 0 {
		m.logger.Warn("Microphone frames dropped", zap.Int("dropped", dropped))
	}
	return nil
}

// speaker renders a Mixer through a Pulse playback stream that runs until closed.
type speaker struct {
	*audio.Mixer
	client *pulse.Client
	stream *pulse.PlaybackStream
	once   sync.Once
}

func (d *Device) OpenOutput(ctx context.Context, sampleRate int) (repositories.AudioOutput, error) {
	client, err := d.newClient("audio-speakers")
	if err != nil {
		return nil, err
	}

	mixer := audio.NewMixer(sampleRate)
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		mixer.Render(buf)
		return len(buf), nil
	})
	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName("kisan-ai advisor voice"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse playback stream: %w", err)
	}
	stream.Start()

	out := &speaker{Mixer: mixer, client: client, stream: stream}
	go func() {
		<-ctx.Done()
		_ = out.Close()
	}()

	d.logger.Info("Speaker opened", zap.Int("sampleRate", sampleRate))
	return out, nil
}

func (s *speaker) Close() error {
	s.once.Do(func() {
		_ = s.Mixer.Close()
		s.stream.Stop()
		s.stream.Close()
		s.client.Close()
	})
	return nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
