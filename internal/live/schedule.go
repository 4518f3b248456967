package live

import (
	"fmt"
	"math"
	"sync"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

// Schedule places inbound buffers back to back on an output timeline. The
// cursor and the pending-source set are shared between the receive path and
// interruption handling, so both live behind one mutex.
type Schedule struct {
	output repositories.AudioOutput

	mu      sync.Mutex
	cursor  float64
	pending map[string]repositories.PlaybackSource
}

func NewSchedule(output repositories.AudioOutput) *Schedule {
	return &Schedule{
		output:  output,
		pending: make(map[string]repositories.PlaybackSource),
	}
}

// Enqueue schedules buf at max(cursor, now) and advances the cursor by its
// duration. It returns the start time used.
func (s *Schedule) Enqueue(buf entities.AudioBuffer) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := math.Max(s.cursor, s.output.CurrentTime())
	src, err := s.output.Schedule(buf, start)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule playback: %w", err)
	}
	s.cursor = start + buf.Duration()
	s.pending[src.ID()] = src

	go func() {
		<-src.Done()
		s.mu.Lock()
		if s.pending[src.ID()] == src {
			delete(s.pending, src.ID())
		}
		s.mu.Unlock()
	}()

	return start, nil
}

// Interrupt stops every pending source and rewinds the cursor to zero. It
// returns how many sources were cut off.
func (s *Schedule) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pending)
	for _, src := range s.pending {
		src.Stop()
	}
	s.pending = make(map[string]repositories.PlaybackSource)
	s.cursor = 0
	return n
}

// Cursor is the next free start time.
func (s *Schedule) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pending is the number of scheduled sources that have not finished.
func (s *Schedule) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
