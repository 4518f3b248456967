package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

// ErrMixerClosed is returned when scheduling on a closed mixer.
var ErrMixerClosed = errors.New("mixer closed")

// Mixer is a sample-accurate mono playback timeline. Its clock is the number
// of frames rendered so far, so it advances only as fast as the device pulls.
type Mixer struct {
	rate int

	mu       sync.Mutex
	rendered int64
	sources  []*mixSource
	closed   bool
}

var _ repositories.AudioOutput = (*Mixer)(nil)

type mixSource struct {
	id      string
	start   int64
	samples []float32
	mixer   *Mixer
	once    sync.Once
	done    chan struct{}
}

func (s *mixSource) ID() string            { return s.id }
func (s *mixSource) Done() <-chan struct{} { return s.done }
func (s *mixSource) Stop()                 { s.mixer.remove(s) }
func (s *mixSource) finish()               { s.once.Do(func() { close(s.done) }) }

func NewMixer(sampleRate int) *Mixer {
	return &Mixer{rate: sampleRate}
}

func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.rendered) / float64(m.rate)
}

// Schedule places buf at time at, or right away if at is already past.
// Multi-channel buffers are averaged down to mono.
func (m *Mixer) Schedule(buf entities.AudioBuffer, at float64) (repositories.PlaybackSource, error) {
	if buf.SampleRate != m.rate {
		return nil, fmt.Errorf("buffer rate %d does not match mixer rate %d", buf.SampleRate, m.rate)
	}
	samples := downmix(buf)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMixerClosed
	}
	start := int64(math.Round(at * float64(m.rate)))
	if start < m.rendered {
		start = m.rendered
	}
	src := &mixSource{id: uuid.NewString(), start: start, samples: samples, mixer: m, done: make(chan struct{})}
	if len(samples) == 0 {
		src.finish()
		return src, nil
	}
	m.sources = append(m.sources, src)
	return src, nil
}

// Render fills out with the next len(out) frames and advances the clock.
func (m *Mixer) Render(out []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range out {
		t := m.rendered + int64(i)
		var sum float32
		for _, src := range m.sources {
			if idx := t - src.start; idx >= 0 && idx < int64(len(src.samples)) {
				sum += src.samples[idx]
			}
		}
		out[i] = floatToInt16(sum)
	}
	m.rendered += int64(len(out))

	kept := m.sources[:0]
	for _, src := range m.sources {
		if src.start+int64(len(src.samples)) <= m.rendered {
			src.finish()
			continue
		}
		kept = append(kept, src)
	}
	for i := len(kept); i < len(m.sources); i++ {
		m.sources[i] = nil
	}
	m.sources = kept
}

// Active is the number of sources not yet finished.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Close stops every source; later Schedule calls fail.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, src := range m.sources {
		src.finish()
	}
	m.sources = nil
	return nil
}

func (m *Mixer) remove(target *mixSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, src := range m.sources {
		if src == target {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			break
		}
	}
	target.finish()
}

func downmix(buf entities.AudioBuffer) []float32 {
	switch len(buf.Channels) {
	case 0:
		return nil
	case 1:
		return buf.Channels[0]
	}
	out := make([]float32, buf.Frames())
	for _, ch := range buf.Channels {
		for i := range out {
			if i < len(ch) {
				out[i] += ch[i]
			}
		}
	}
	scale := 1 / float32(len(buf.Channels))
	for i := range out {
		out[i] *= scale
	}
	return out
}
