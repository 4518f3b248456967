package websocket

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second
	defaultMaxIdle         = pongWait + writeWait
)

// SessionCleanupService hangs up live calls whose socket went quiet.
type SessionCleanupService struct {
	hub      *Hub
	interval time.Duration
	maxIdle  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service. Zero
// durations fall back to the defaults.
func NewSessionCleanupService(hub *Hub, interval, maxIdle time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	return &SessionCleanupService{
		hub:      hub,
		interval: interval,
		maxIdle:  maxIdle,
		now:      time.Now,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("interval", s.interval),
		zap.Duration("maxIdle", s.maxIdle))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup closes idle sockets and returns how many it closed. Closing the
// socket ends readPump, which stops the live session and unregisters.
func (s *SessionCleanupService) runCleanup() int {
	now := s.now()
	reaped := 0
	for _, c := range s.hub.snapshot() {
		idle := c.idleFor(now)
		if idle < s.maxIdle {
			continue
		}
		s.logger.Info("Closing idle live call",
			zap.String("sessionID", c.id),
			zap.Duration("idle", idle))
		c.conn.Close()
		reaped++
	}
	return reaped
}
