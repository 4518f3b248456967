package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
)

var errOutputClosed = errors.New("remote output closed")

// socketMicrophone turns browser audio messages into fixed-size capture frames.
type socketMicrophone struct {
	framer *audio.Framer
	frames chan []float32

	mu      sync.Mutex
	closed  bool
	dropped int
}

var _ repositories.Microphone = (*socketMicrophone)(nil)

func newSocketMicrophone(frameSize int) *socketMicrophone {
	return &socketMicrophone{
		framer: audio.NewFramer(frameSize),
		frames: make(chan []float32, 16),
	}
}

func (m *socketMicrophone) Frames() <-chan []float32 {
	return m.frames
}

// Push accepts PCM16 little-endian mono bytes. A trailing odd byte is ignored.
// Frames that do not fit the buffer are dropped and counted.
func (m *socketMicrophone) Push(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, frame := range m.framer.Push(audio.PCM16ToFloat(pcm)) {
		select {
		case m.frames <- frame:
		default:
			m.dropped++
		}
	}
}

func (m *socketMicrophone) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *socketMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.frames)
	}
	return nil
}

// remoteOutput is an AudioOutput whose speaker is the browser. Its clock is
// wall time since it was opened; the browser aligns its own clock to the
// first play message.
type remoteOutput struct {
	send  func(v any) error
	now   func() time.Time
	after func(d time.Duration, f func()) (stop func() bool)
	start time.Time

	mu      sync.Mutex
	sources map[string]*remoteSource
	closed  bool
}

var _ repositories.AudioOutput = (*remoteOutput)(nil)

type remoteSource struct {
	id     string
	output *remoteOutput
	once   sync.Once
	done   chan struct{}
	cancel func() bool
}

func (s *remoteSource) ID() string            { return s.id }
func (s *remoteSource) Done() <-chan struct{} { return s.done }
func (s *remoteSource) Stop()                 { s.output.stop(s, true) }
func (s *remoteSource) finish()               { s.once.Do(func() { close(s.done) }) }

func newRemoteOutput(send func(v any) error) *remoteOutput {
	o := &remoteOutput{
		send:    send,
		now:     time.Now,
		sources: make(map[string]*remoteSource),
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
	o.start = o.now()
	return o
}

func (o *remoteOutput) CurrentTime() float64 {
	return o.now().Sub(o.start).Seconds()
}

// Schedule ships the buffer to the browser. The source counts as finished
// once its end time passes on the output clock.
func (o *remoteOutput) Schedule(buf entities.AudioBuffer, at float64) (repositories.PlaybackSource, error) {
	if len(buf.Channels) == 0 {
		return nil, fmt.Errorf("buffer has no channels")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errOutputClosed
	}

	now := o.CurrentTime()
	if at < now {
		at = now
	}
	src := &remoteSource{id: uuid.NewString(), output: o, done: make(chan struct{})}
	if err := o.send(NewPlayMessage(src.id, at, audio.Encode(audio.FloatToPCM16(buf.Channels[0])))); err != nil {
		return nil, fmt.Errorf("failed to send play message: %w", err)
	}

	remaining := time.Duration((at + buf.Duration() - now) * float64(time.Second))
	src.cancel = o.after(remaining, func() { o.stop(src, false) })
	o.sources[src.id] = src
	return src, nil
}

func (o *remoteOutput) stop(src *remoteSource, notify bool) {
	o.mu.Lock()
	_, active := o.sources[src.id]
	delete(o.sources, src.id)
	closed := o.closed
	o.mu.Unlock()

	if active {
		if src.cancel != nil {
			src.cancel()
		}
		if notify && !closed {
			_ = o.send(NewStopMessage(src.id))
		}
	}
	src.finish()
}

// Close silences everything still scheduled in one stop message.
func (o *remoteOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	sources := o.sources
	o.sources = make(map[string]*remoteSource)
	o.mu.Unlock()

	ids := make([]string, 0, len(sources))
	for id, src := range sources {
		ids = append(ids, id)
		if src.cancel != nil {
			src.cancel()
		}
		src.finish()
	}
	if len(ids) > 0 {
		_ = o.send(NewStopMessage(ids...))
	}
	return nil
}

// bridgeDevice hands the live manager the socket-backed microphone and output.
type bridgeDevice struct {
	client *Client
}

var _ repositories.AudioDevice = (*bridgeDevice)(nil)

func (d *bridgeDevice) OpenMicrophone(ctx context.Context, sampleRate, frameSize int) (repositories.Microphone, error) {
	mic := newSocketMicrophone(frameSize)
	d.client.mu.Lock()
	defer d.client.mu.Unlock()
	if d.client.closed {
		return nil, fmt.Errorf("socket closed")
	}
	d.client.mic = mic
	return mic, nil
}

func (d *bridgeDevice) OpenOutput(ctx context.Context, sampleRate int) (repositories.AudioOutput, error) {
	return newRemoteOutput(d.client.enqueueJSON), nil
}
