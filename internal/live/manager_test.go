package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []entities.LiveState
	errs   []error
}

func (r *stateRecorder) hooks() Hooks {
	return Hooks{
		OnState: func(s entities.LiveState) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *stateRecorder) snapshot() ([]entities.LiveState, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.LiveState(nil), r.states...), append([]error(nil), r.errs...)
}

type harness struct {
	manager   *Manager
	device    *fakeDevice
	connector *fakeConnector
	stream    *fakeStream
	recorder  *stateRecorder
}

func newHarness(t *testing.T, queue int) *harness {
	t.Helper()
	h := &harness{
		device:   &fakeDevice{mic: newFakeMic(), out: &fakeOutput{}},
		stream:   &fakeStream{},
		recorder: &stateRecorder{},
	}
	h.connector = &fakeConnector{stream: h.stream}
	m, err := NewManager(Config{
		SystemInstruction: "You are an agronomist for Madhya Pradesh.",
		Language:          entities.LanguageHindi,
		OutboundQueueSize: queue,
	}, h.connector, h.device, h.recorder.hooks(), observability.NewMetrics("test"), zaptest.NewLogger(t))
	require.NoError(t, err)
	h.manager = m
	t.Cleanup(func() { _ = m.Stop() })
	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	require.NoError(t, h.manager.Start(context.Background()))
	h.connector.callbacks().OnOpen()
	require.Equal(t, entities.LiveStateStreaming, h.manager.State())
}

func TestNewManagerDefaults(t *testing.T) {
	_, err := NewManager(Config{}, &fakeConnector{}, &fakeDevice{}, Hooks{}, nil, zaptest.NewLogger(t))
	require.Error(t, err)

	h := newHarness(t, 0)
	require.Equal(t, defaultModel, h.manager.config.Model)
	require.Equal(t, defaultVoice, h.manager.config.Voice)
	require.Equal(t, defaultOutboundQueueSize, h.manager.config.OutboundQueueSize)
	require.Equal(t, entities.LiveStateIdle, h.manager.State())
}

func TestStartConnectsThenStreamsOnOpen(t *testing.T) {
	h := newHarness(t, 4)

	require.NoError(t, h.manager.Start(context.Background()))
	require.Equal(t, entities.LiveStateConnecting, h.manager.State())
	require.Equal(t, entities.CaptureSampleRate, h.device.micRate)
	require.Equal(t, entities.PlaybackSampleRate, h.device.outRate)
	require.Equal(t, defaultVoice, h.connector.config.Voice)
	require.Equal(t, "You are an agronomist for Madhya Pradesh.", h.connector.config.SystemInstruction)

	h.connector.callbacks().OnOpen()
	require.Equal(t, entities.LiveStateStreaming, h.manager.State())
	require.Equal(t, entities.LanguageHindi, h.manager.Session().Language)

	states, _ := h.recorder.snapshot()
	require.Equal(t, []entities.LiveState{entities.LiveStateConnecting, entities.LiveStateStreaming}, states)
}

func TestOpenBeforeConnectReturns(t *testing.T) {
	h := newHarness(t, 4)
	h.connector.openOnConnect = true

	require.NoError(t, h.manager.Start(context.Background()))
	require.Equal(t, entities.LiveStateStreaming, h.manager.State())

	h.device.mic.frames <- []float32{0.25}
	require.Eventually(t, func() bool { return len(h.stream.sent()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSecondStartIsRejected(t *testing.T) {
	h := newHarness(t, 4)
	h.open(t)

	err := h.manager.Start(context.Background())
	require.ErrorIs(t, err, ErrSessionActive)
	require.Equal(t, 1, h.connector.connects)
	require.Equal(t, entities.LiveStateStreaming, h.manager.State())
}

func TestFramesAreSentInCaptureOrder(t *testing.T) {
	h := newHarness(t, 16)
	h.open(t)

	frames := [][]float32{
		{0.1, -0.1},
		{0.2, -0.2},
		{0.3, -0.3},
		{0.4, -0.4},
	}
	for _, f := range frames {
		h.device.mic.frames <- f
	}

	require.Eventually(t, func() bool { return len(h.stream.sent()) == len(frames) }, time.Second, 5*time.Millisecond)
	for i, sent := range h.stream.sent() {
		require.Equal(t, audio.FloatToPCM16(frames[i]), sent)
	}
	h.stream.mu.Lock()
	for _, mime := range h.stream.mimes {
		require.Equal(t, entities.CaptureMIMEType, mime)
	}
	h.stream.mu.Unlock()

	require.Eventually(t, func() bool { return h.manager.Session().FramesSent == int64(len(frames)) }, time.Second, 5*time.Millisecond)
	require.InDelta(t, audio.RMS(frames[3]), h.manager.Level(), 1e-6)
}

func TestInboundAudioIsScheduledBackToBack(t *testing.T) {
	h := newHarness(t, 4)
	h.open(t)

	pcm := audio.FloatToPCM16(make([]float32, 2400))
	cb := h.connector.callbacks()
	cb.OnMessage(repositories.LiveMessage{Audio: pcm})
	cb.OnMessage(repositories.LiveMessage{Audio: pcm})

	sources := h.device.out.scheduled()
	require.Len(t, sources, 2)
	require.InDelta(t, 0, sources[0].at, 1e-9)
	require.InDelta(t, 0.1, sources[1].at, 1e-9)
	require.Equal(t, int64(2), h.manager.Session().FramesPlayed)
}

func TestInterruptionClearsPlayback(t *testing.T) {
	h := newHarness(t, 4)
	h.open(t)

	pcm := audio.FloatToPCM16(make([]float32, 4800))
	cb := h.connector.callbacks()
	cb.OnMessage(repositories.LiveMessage{Audio: pcm})
	cb.OnMessage(repositories.LiveMessage{Audio: pcm})

	cb.OnMessage(repositories.LiveMessage{Interrupted: true})
	for _, src := range h.device.out.scheduled() {
		require.True(t, src.stopped.Load())
	}

	cb.OnMessage(repositories.LiveMessage{Audio: pcm})
	sources := h.device.out.scheduled()
	require.Len(t, sources, 3)
	require.InDelta(t, 0, sources[2].at, 1e-9)
	require.Equal(t, entities.LiveStateStreaming, h.manager.State())
}

func TestOddInboundChunkIsDropped(t *testing.T) {
	h := newHarness(t, 4)
	h.open(t)

	h.connector.callbacks().OnMessage(repositories.LiveMessage{Audio: []byte{1, 2, 3}})
	require.Empty(t, h.device.out.scheduled())
	require.Equal(t, entities.LiveStateStreaming, h.manager.State())
}

func TestStopReleasesEverythingAndIsIdempotent(t *testing.T) {
	h := newHarness(t, 4)
	h.open(t)

	pcm := audio.FloatToPCM16(make([]float32, 2400))
	h.connector.callbacks().OnMessage(repositories.LiveMessage{Audio: pcm})

	require.NoError(t, h.manager.Stop())
	require.Equal(t, entities.LiveStateClosed, h.manager.State())
	require.True(t, h.device.mic.closed.Load())
	require.True(t, h.stream.isClosed())
	require.True(t, h.device.out.isClosed())
	require.True(t, h.device.out.scheduled()[0].stopped.Load())
	require.Zero(t, h.manager.Level())

	require.NoError(t, h.manager.Stop())
	require.Equal(t, entities.LiveStateClosed, h.manager.State())

	states, errs := h.recorder.snapshot()
	require.Equal(t, entities.LiveStateClosed, states[len(states)-1])
	require.Empty(t, errs)
}

func TestStopOnIdleDoesNothing(t *testing.T) {
	h := newHarness(t, 4)
	require.NoError(t, h.manager.Stop())
	require.Equal(t, entities.LiveStateIdle, h.manager.State())
}

func TestRestartAfterClose(t *testing.T) {
	h := newHarness(t, 4)
	h.open(t)
	first := h.manager.Session().ID
	require.NoError(t, h.manager.Stop())

	h.device.mic = newFakeMic()
	h.device.out = &fakeOutput{}
	h.open(t)
	require.NotEqual(t, first, h.manager.Session().ID)
	require.Equal(t, 2, h.connector.connects)
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		check func(t *testing.T, h *harness)
	}{
		{
			name:  "microphone denied",
			setup: func(h *harness) { h.device.micErr = errors.New("permission denied") },
			check: func(t *testing.T, h *harness) {
				require.Zero(t, h.connector.connects)
			},
		},
		{
			name:  "output unavailable",
			setup: func(h *harness) { h.device.outErr = errors.New("no sink") },
			check: func(t *testing.T, h *harness) {
				require.True(t, h.device.mic.closed.Load())
				require.Zero(t, h.connector.connects)
			},
		},
		{
			name:  "connect refused",
			setup: func(h *harness) { h.connector.err = errors.New("dial failed") },
			check: func(t *testing.T, h *harness) {
				require.True(t, h.device.mic.closed.Load())
				require.True(t, h.device.out.isClosed())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 4)
			tt.setup(h)

			err := h.manager.Start(context.Background())
			require.Error(t, err)
			require.Equal(t, entities.LiveStateClosed, h.manager.State())

			_, errs := h.recorder.snapshot()
			require.Len(t, errs, 1)
			tt.check(t, h)
		})
	}
}

func TestRemoteEndsSession(t *testing.T) {
	tests := []struct {
		name    string
		end     func(cb repositories.LiveCallbacks)
		wantErr bool
	}{
		{name: "remote close", end: func(cb repositories.LiveCallbacks) { cb.OnClose() }},
		{name: "remote error", end: func(cb repositories.LiveCallbacks) { cb.OnError(errors.New("stream reset")) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 4)
			h.open(t)

			tt.end(h.connector.callbacks())
			require.Equal(t, entities.LiveStateClosed, h.manager.State())
			require.True(t, h.device.mic.closed.Load())
			require.True(t, h.stream.isClosed())
			require.True(t, h.device.out.isClosed())

			_, errs := h.recorder.snapshot()
			if tt.wantErr {
				require.Len(t, errs, 1)
			} else {
				require.Empty(t, errs)
			}

			// Late callbacks from the dead run are ignored.
			h.connector.callbacks().OnMessage(repositories.LiveMessage{Audio: audio.FloatToPCM16(make([]float32, 240))})
			require.Empty(t, h.device.out.scheduled())
		})
	}
}

func TestSendFailureClosesSession(t *testing.T) {
	h := newHarness(t, 4)
	h.stream.sendErr = errors.New("broken pipe")
	h.open(t)

	h.device.mic.frames <- []float32{0.5}
	require.Eventually(t, func() bool { return h.manager.State() == entities.LiveStateClosed }, time.Second, 5*time.Millisecond)
	_, errs := h.recorder.snapshot()
	require.Len(t, errs, 1)
	require.ErrorContains(t, errs[0], "broken pipe")
}

func TestMicrophoneEndingClosesSession(t *testing.T) {
	h := newHarness(t, 4)
	h.open(t)

	close(h.device.mic.frames)
	require.Eventually(t, func() bool { return h.manager.State() == entities.LiveStateClosed }, time.Second, 5*time.Millisecond)
	_, errs := h.recorder.snapshot()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrMicrophoneClosed)
}

func TestOutboundQueueDropsOldest(t *testing.T) {
	h := newHarness(t, 2)
	r := &run{
		session:  entities.NewLiveSession(entities.LanguageEnglish),
		outbound: make(chan []byte, 2),
	}

	h.manager.enqueue(r, []byte{1})
	h.manager.enqueue(r, []byte{2})
	h.manager.enqueue(r, []byte{3})

	require.Len(t, r.outbound, 2)
	require.Equal(t, []byte{2}, <-r.outbound)
	require.Equal(t, []byte{3}, <-r.outbound)
}

func TestStopFromLevelHookReturns(t *testing.T) {
	device := &fakeDevice{mic: newFakeMic(), out: &fakeOutput{}}
	stream := &fakeStream{}
	connector := &fakeConnector{stream: stream, openOnConnect: true}

	var m *Manager
	stopped := make(chan error, 1)
	m, err := NewManager(Config{SystemInstruction: "You are an agronomist for Madhya Pradesh."}, connector, device, Hooks{
		OnLevel: func(float64) { stopped <- m.Stop() },
	}, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	device.mic.frames <- []float32{0.5}

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from OnLevel did not return")
	}
	require.Equal(t, entities.LiveStateClosed, m.State())
	require.True(t, stream.isClosed())
	require.True(t, device.mic.closed.Load())
}

func TestStopRacingStartLeavesNoLoops(t *testing.T) {
	for i := 0; i < 50; i++ {
		device := &fakeDevice{mic: newFakeMic(), out: &fakeOutput{}}
		stream := &fakeStream{}
		connector := &fakeConnector{stream: stream, openOnConnect: true}
		m, err := NewManager(Config{SystemInstruction: "You are an agronomist for Madhya Pradesh."}, connector, device, Hooks{}, nil, zap.NewNop())
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = m.Stop()
		}()
		wg.Wait()
		require.NoError(t, m.Stop())
		require.NotEqual(t, entities.LiveStateConnecting, m.State())
		require.NotEqual(t, entities.LiveStateStreaming, m.State())

		// Nothing is left reading the microphone or sending.
		device.mic.frames <- []float32{0.5}
		time.Sleep(2 * time.Millisecond)
		require.Empty(t, stream.sent())
	}
}
