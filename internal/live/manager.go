// Package live runs a full-duplex voice session: microphone frames go out
// over a live model connection while synthesized speech comes back and is
// played gaplessly, with barge-in handled by the Schedule.
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
)

const (
	defaultModel             = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultVoice             = "Zephyr"
	defaultOutboundQueueSize = 8
)

var (
	// ErrSessionActive is returned by Start while a session is connecting or streaming.
	ErrSessionActive = errors.New("live session already active")
	// ErrStoppedDuringStart is returned when Stop wins against a pending Start.
	ErrStoppedDuringStart = errors.New("live session stopped while starting")
	// ErrMicrophoneClosed is reported when capture ends on its own.
	ErrMicrophoneClosed = errors.New("microphone capture ended")
)

// Config for a Manager.
type Config struct {
	Model             string
	Voice             string
	Language          entities.Language
	SystemInstruction string
	// OutboundQueueSize bounds the frames waiting between capture and send.
	// When full the oldest frame is dropped.
	OutboundQueueSize int
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.SystemInstruction == "" {
		return fmt.Errorf("system instruction is required")
	}
	if config.OutboundQueueSize < 0 {
		return fmt.Errorf("outbound queue size must be positive, got %d", config.OutboundQueueSize)
	}
	return nil
}

// Hooks let a host observe the session. All are optional and are called
// without the manager lock held. A hook may call Stop; from OnLevel it then
// returns without waiting for the capture loop, which exits right after.
type Hooks struct {
	OnState func(state entities.LiveState)
	OnLevel func(rms float64)
	OnError func(err error)
}

// Manager owns at most one live session at a time.
type Manager struct {
	config    Config
	connector repositories.LiveConnector
	device    repositories.AudioDevice
	hooks     Hooks
	metrics   *observability.Metrics
	logger    *zap.Logger

	mu      sync.Mutex
	session *entities.LiveSession
	current *run

	level atomic.Uint64
}

// run holds everything owned by one Start..Closed cycle.
type run struct {
	session  *entities.LiveSession
	ctx      context.Context
	cancel   context.CancelFunc
	mic      repositories.Microphone
	output   repositories.AudioOutput
	stream   repositories.LiveStream
	schedule *Schedule
	outbound chan []byte
	opened   bool
	looping  bool
	wg       sync.WaitGroup

	// inLevelHook is set while the capture loop is inside OnLevel.
	inLevelHook atomic.Bool
}

// NewManager creates a live session manager.
func NewManager(config Config, connector repositories.LiveConnector, device repositories.AudioDevice, hooks Hooks, metrics *observability.Metrics, logger *zap.Logger) (*Manager, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = defaultModel
		logger.Info("Using default live model", zap.String("model", config.Model))
	}
	if config.Voice == "" {
		config.Voice = defaultVoice
		logger.Info("Using default voice", zap.String("voice", config.Voice))
	}
	if config.OutboundQueueSize == 0 {
		config.OutboundQueueSize = defaultOutboundQueueSize
		logger.Info("Using default outbound queue size", zap.Int("outboundQueueSize", config.OutboundQueueSize))
	}
	if config.Language == "" {
		config.Language = entities.LanguageEnglish
	}

	return &Manager{
		config:    config,
		connector: connector,
		device:    device,
		hooks:     hooks,
		metrics:   metrics,
		logger:    logger,
		session:   entities.NewLiveSession(config.Language),
	}, nil
}

// State is the current lifecycle state.
func (m *Manager) State() entities.LiveState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

// Session returns a snapshot of the current session record.
func (m *Manager) Session() entities.LiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.session
}

// Level is the RMS of the last captured buffer, zero when not streaming.
func (m *Manager) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Start opens the microphone, the playback output and the remote session.
// It returns once the connection is dialed; streaming begins when the remote
// side acknowledges. Any failure closes the session and is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if _, err := entities.Transition(m.session.State, entities.LiveEventStart); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSessionActive, err)
	}
	session := entities.NewLiveSession(m.config.Language)
	if err := session.Apply(entities.LiveEventStart); err != nil {
		m.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		session:  session,
		ctx:      runCtx,
		cancel:   cancel,
		outbound: make(chan []byte, m.config.OutboundQueueSize),
	}
	m.session = session
	m.current = r
	m.mu.Unlock()

	m.metrics.LiveEvent(string(entities.LiveEventStart))
	m.metrics.LiveSessionOpened()
	m.notifyState(entities.LiveStateConnecting)
	m.logger.Info("Starting live session",
		zap.String("sessionID", session.ID),
		zap.String("model", m.config.Model),
		zap.String("language", string(m.config.Language)))

	mic, err := m.device.OpenMicrophone(runCtx, entities.CaptureSampleRate, entities.CaptureFrameSize)
	if err != nil {
		err = fmt.Errorf("failed to open microphone: %w", err)
		m.teardown(r, entities.LiveEventError, err)
		return err
	}
	if !m.attach(r, func() { r.mic = mic }) {
		mic.Close()
		return ErrStoppedDuringStart
	}

	output, err := m.device.OpenOutput(runCtx, entities.PlaybackSampleRate)
	if err != nil {
		err = fmt.Errorf("failed to open audio output: %w", err)
		m.teardown(r, entities.LiveEventError, err)
		return err
	}
	if !m.attach(r, func() { r.output = output; r.schedule = NewSchedule(output) }) {
		output.Close()
		return ErrStoppedDuringStart
	}

	stream, err := m.connector.Connect(runCtx, repositories.LiveConfig{
		Model:             m.config.Model,
		SystemInstruction: m.config.SystemInstruction,
		Voice:             m.config.Voice,
	}, repositories.LiveCallbacks{
		OnOpen:    func() { m.handleOpen(r) },
		OnMessage: func(msg repositories.LiveMessage) { m.handleMessage(r, msg) },
		OnError:   func(err error) { m.teardown(r, entities.LiveEventError, err) },
		OnClose:   func() { m.teardown(r, entities.LiveEventRemoteClose, nil) },
	})
	if err != nil {
		err = fmt.Errorf("failed to open live session: %w", err)
		m.teardown(r, entities.LiveEventError, err)
		return err
	}
	if !m.attach(r, func() { r.stream = stream }) {
		stream.Close()
		return ErrStoppedDuringStart
	}

	m.mu.Lock()
	m.startLoopsLocked(r)
	m.mu.Unlock()
	return nil
}

// Stop closes the session. Stopping a closed or idle session does nothing.
func (m *Manager) Stop() error {
	m.mu.Lock()
	r := m.current
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	m.teardown(r, entities.LiveEventStop, nil)
	if !r.inLevelHook.Load() {
		r.wg.Wait()
	}
	return nil
}

// attach stores a freshly opened handle on r if r is still the live run.
func (m *Manager) attach(r *run, set func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != r || !r.session.Active() {
		return false
	}
	set()
	return true
}

func (m *Manager) handleOpen(r *run) {
	m.mu.Lock()
	if m.current != r || r.session.State != entities.LiveStateConnecting {
		m.mu.Unlock()
		return
	}
	if err := r.session.Apply(entities.LiveEventOpen); err != nil {
		m.mu.Unlock()
		m.logger.Warn("Ignoring open event", zap.Error(err))
		return
	}
	r.opened = true
	m.startLoopsLocked(r)
	m.mu.Unlock()

	m.metrics.LiveEvent(string(entities.LiveEventOpen))
	m.notifyState(entities.LiveStateStreaming)
	m.logger.Info("Live session open", zap.String("sessionID", r.session.ID))
}

// startLoopsLocked starts capture and send once the remote side has opened
// and the stream handle is known, whichever happens last.
func (m *Manager) startLoopsLocked(r *run) {
	if m.current != r || r.looping || !r.opened || r.stream == nil || r.mic == nil {
		return
	}
	r.looping = true
	r.wg.Add(2)
	go m.captureLoop(r)
	go m.sendLoop(r)
}

// captureLoop turns microphone buffers into PCM frames on the outbound queue.
func (m *Manager) captureLoop(r *run) {
	defer r.wg.Done()
	frames := r.mic.Frames()
	for {
		select {
		case <-r.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				if r.ctx.Err() == nil {
					m.teardown(r, entities.LiveEventError, ErrMicrophoneClosed)
				}
				return
			}
			rms := audio.RMS(frame)
			m.level.Store(math.Float64bits(rms))
			if m.hooks.OnLevel != nil {
				r.inLevelHook.Store(true)
				m.hooks.OnLevel(rms)
				r.inLevelHook.Store(false)
			}
			m.enqueue(r, audio.FloatToPCM16(frame))
		}
	}
}

// enqueue pushes a frame, dropping the oldest queued frame when full.
func (m *Manager) enqueue(r *run, pcm []byte) {
	for {
		select {
		case r.outbound <- pcm:
			return
		default:
		}
		select {
		case <-r.outbound:
			m.metrics.LiveFrame("outbound", "dropped")
			m.logger.Debug("Outbound queue full, dropped oldest frame", zap.String("sessionID", r.session.ID))
		default:
		}
	}
}

// sendLoop sends frames in capture order.
func (m *Manager) sendLoop(r *run) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case pcm := <-r.outbound:
			if err := r.stream.SendAudio(pcm, entities.CaptureMIMEType); err != nil {
				if r.ctx.Err() == nil {
					m.teardown(r, entities.LiveEventError, fmt.Errorf("failed to send audio frame: %w", err))
				}
				return
			}
			m.metrics.LiveFrame("outbound", "sent")
			m.mu.Lock()
			r.session.FramesSent++
			m.mu.Unlock()
		}
	}
}

func (m *Manager) handleMessage(r *run, msg repositories.LiveMessage) {
	m.mu.Lock()
	if m.current != r || !r.session.Active() || r.schedule == nil {
		m.mu.Unlock()
		return
	}
	schedule := r.schedule
	r.session.Touch()
	m.mu.Unlock()

	if msg.Interrupted {
		stopped := schedule.Interrupt()
		m.metrics.Interruption()
		m.logger.Info("Model interrupted, playback cleared",
			zap.String("sessionID", r.session.ID),
			zap.Int("stoppedSources", stopped))
	}
	if len(msg.Audio) == 0 {
		return
	}

	buf, err := audio.PCMToBuffer(msg.Audio, entities.PlaybackSampleRate, 1)
	if err != nil {
		m.metrics.LiveFrame("inbound", "invalid")
		m.logger.Warn("Dropping undecodable audio chunk", zap.String("sessionID", r.session.ID), zap.Error(err))
		return
	}
	if _, err := schedule.Enqueue(buf); err != nil {
		m.metrics.LiveFrame("inbound", "failed")
		m.logger.Warn("Failed to schedule audio chunk", zap.String("sessionID", r.session.ID), zap.Error(err))
		return
	}
	m.metrics.LiveFrame("inbound", "scheduled")
	m.mu.Lock()
	r.session.FramesPlayed++
	m.mu.Unlock()
}

// teardown moves r to Closed and releases its handles. Only the first call
// per run does anything.
func (m *Manager) teardown(r *run, event entities.LiveEvent, cause error) {
	m.mu.Lock()
	if m.current != r || !r.session.Active() {
		m.mu.Unlock()
		return
	}
	if err := r.session.Apply(event); err != nil {
		m.mu.Unlock()
		m.logger.Error("Failed to close live session", zap.Error(err))
		return
	}
	m.current = nil
	stream, mic, output, schedule := r.stream, r.mic, r.output, r.schedule
	m.mu.Unlock()

	r.cancel()
	m.level.Store(0)

	if stream != nil {
		if err := stream.Close(); err != nil {
			m.logger.Debug("Live stream close", zap.Error(err))
		}
	}
	if mic != nil {
		if err := mic.Close(); err != nil {
			m.logger.Debug("Microphone close", zap.Error(err))
		}
	}
	if schedule != nil {
		schedule.Interrupt()
	}
	if output != nil {
		if err := output.Close(); err != nil {
			m.logger.Debug("Audio output close", zap.Error(err))
		}
	}

	m.metrics.LiveEvent(string(event))
	m.metrics.LiveSessionClosed()
	if cause != nil {
		m.logger.Error("Live session closed on error",
			zap.String("sessionID", r.session.ID),
			zap.String("event", string(event)),
			zap.Error(cause))
		if m.hooks.OnError != nil {
			m.hooks.OnError(cause)
		}
	} else {
		m.logger.Info("Live session closed",
			zap.String("sessionID", r.session.ID),
			zap.String("event", string(event)))
	}
	m.notifyState(entities.LiveStateClosed)
}

func (m *Manager) notifyState(state entities.LiveState) {
	if m.hooks.OnState != nil {
		m.hooks.OnState(state)
	}
}
