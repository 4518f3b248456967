package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LiveState is the lifecycle state of a live voice session.
type LiveState string

const (
	LiveStateIdle       LiveState = "idle"
	LiveStateConnecting LiveState = "connecting"
	// LiveStateStreaming is the open state: the remote side acknowledged and audio flows both ways.
	LiveStateStreaming LiveState = "streaming"
	LiveStateClosed    LiveState = "closed"
)

// LiveEvent drives LiveState transitions.
type LiveEvent string

const (
	LiveEventStart       LiveEvent = "start"
	LiveEventOpen        LiveEvent = "open"
	LiveEventStop        LiveEvent = "stop"
	LiveEventRemoteClose LiveEvent = "remote_close"
	LiveEventError       LiveEvent = "error"
)

var ErrInvalidTransition = errors.New("invalid live session transition")

// Transition returns the state reached from current on event. Stopping a
// closed session is allowed and leaves it closed.
func Transition(current LiveState, event LiveEvent) (LiveState, error) {
	switch current {
	case LiveStateIdle:
		switch event {
		case LiveEventStart:
			return LiveStateConnecting, nil
		case LiveEventStop:
			return LiveStateClosed, nil
		}
	case LiveStateConnecting:
		switch event {
		case LiveEventOpen:
			return LiveStateStreaming, nil
		case LiveEventStop, LiveEventRemoteClose, LiveEventError:
			return LiveStateClosed, nil
		}
	case LiveStateStreaming:
		switch event {
		case LiveEventStop, LiveEventRemoteClose, LiveEventError:
			return LiveStateClosed, nil
		}
	case LiveStateClosed:
		switch event {
		case LiveEventStart:
			return LiveStateConnecting, nil
		case LiveEventStop, LiveEventRemoteClose, LiveEventError:
			return LiveStateClosed, nil
		}
	default:
		return current, fmt.Errorf("unknown live state %q", current)
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state LiveState, event LiveEvent) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, state, event)
}

// LiveSession records one live voice conversation. Nothing about it is persisted.
type LiveSession struct {
	ID           string    `json:"id"`
	Language     Language  `json:"language"`
	State        LiveState `json:"state"`
	StartedAt    time.Time `json:"startedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	ClosedAt     time.Time `json:"closedAt,omitempty"`
	CloseReason  string    `json:"closeReason,omitempty"`
	FramesSent   int64     `json:"framesSent"`
	FramesPlayed int64     `json:"framesPlayed"`
}

// NewLiveSession creates an idle session record.
func NewLiveSession(lang Language) *LiveSession {
	now := time.Now()
	return &LiveSession{
		ID:           uuid.NewString(),
		Language:     lang,
		State:        LiveStateIdle,
		StartedAt:    now,
		LastActiveAt: now,
	}
}

// Apply moves the session through event and stamps the activity time.
func (s *LiveSession) Apply(event LiveEvent) error {
	next, err := Transition(s.State, event)
	if err != nil {
		return err
	}
	now := time.Now()
	if next == LiveStateClosed && s.State != LiveStateClosed {
		s.ClosedAt = now
		s.CloseReason = string(event)
	}
	if next == LiveStateConnecting {
		s.StartedAt = now
		s.ClosedAt = time.Time{}
		s.CloseReason = ""
	}
	s.State = next
	s.LastActiveAt = now
	return nil
}

// Touch marks activity without changing state.
func (s *LiveSession) Touch() {
	s.LastActiveAt = time.Now()
}

// IdleFor reports whether nothing happened on the session for longer than d.
func (s *LiveSession) IdleFor(d time.Duration) bool {
	return time.Since(s.LastActiveAt) > d
}

// Active reports whether the session holds devices.
func (s *LiveSession) Active() bool {
	return s.State == LiveStateConnecting || s.State == LiveStateStreaming
}
