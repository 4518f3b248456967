package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

type fakeSource struct {
	id      string
	at      float64
	buf     entities.AudioBuffer
	once    sync.Once
	done    chan struct{}
	stopped atomic.Bool
}

func (s *fakeSource) ID() string { return s.id }

func (s *fakeSource) Stop() {
	s.stopped.Store(true)
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSource) Done() <-chan struct{} { return s.done }

func (s *fakeSource) finish() { s.once.Do(func() { close(s.done) }) }

type fakeOutput struct {
	mu          sync.Mutex
	now         float64
	sources     []*fakeSource
	closed      bool
	scheduleErr error
}

var _ repositories.AudioOutput = (*fakeOutput)(nil)

func (o *fakeOutput) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(t float64) {
	o.mu.Lock()
	o.now = t
	o.mu.Unlock()
}

func (o *fakeOutput) Schedule(buf entities.AudioBuffer, at float64) (repositories.PlaybackSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scheduleErr != nil {
		return nil, o.scheduleErr
	}
	src := &fakeSource{id: fmt.Sprintf("src-%d", len(o.sources)), at: at, buf: buf, done: make(chan struct{})}
	o.sources = append(o.sources, src)
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) scheduled() []*fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeSource(nil), o.sources...)
}

func (o *fakeOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeMic struct {
	frames chan []float32
	closed atomic.Bool
}

func newFakeMic() *fakeMic {
	return &fakeMic{frames: make(chan []float32, 16)}
}

func (m *fakeMic) Frames() <-chan []float32 { return m.frames }

func (m *fakeMic) Close() error {
	m.closed.Store(true)
	return nil
}

type fakeDevice struct {
	mic    *fakeMic
	out    *fakeOutput
	micErr error
	outErr error

	micRate int
	outRate int
}

func (d *fakeDevice) OpenMicrophone(ctx context.Context, sampleRate, frameSize int) (repositories.Microphone, error) {
	d.micRate = sampleRate
	if d.micErr != nil {
		return nil, d.micErr
	}
	return d.mic, nil
}

func (d *fakeDevice) OpenOutput(ctx context.Context, sampleRate int) (repositories.AudioOutput, error) {
	d.outRate = sampleRate
	if d.outErr != nil {
		return nil, d.outErr
	}
	return d.out, nil
}

type fakeStream struct {
	mu      sync.Mutex
	frames  [][]byte
	mimes   []string
	closed  bool
	sendErr error
}

func (s *fakeStream) SendAudio(frame []byte, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, frame)
	s.mimes = append(s.mimes, mimeType)
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeConnector struct {
	mu       sync.Mutex
	config   repositories.LiveConfig
	cb       repositories.LiveCallbacks
	stream   *fakeStream
	err      error
	connects int
	// openOnConnect fires OnOpen before Connect returns.
	openOnConnect bool
}

func (c *fakeConnector) Connect(ctx context.Context, config repositories.LiveConfig, cb repositories.LiveCallbacks) (repositories.LiveStream, error) {
	c.mu.Lock()
	c.connects++
	c.config = config
	c.cb = cb
	err := c.err
	open := c.openOnConnect
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if open {
		cb.OnOpen()
	}
	return c.stream, nil
}

func (c *fakeConnector) callbacks() repositories.LiveCallbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}
