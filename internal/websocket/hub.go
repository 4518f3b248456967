// Package websocket bridges browser live-voice calls to the live session
// manager over a websocket per call.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
	"github.com/mpkisan/kisan-ai/server/internal/live"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	sendBufferSize = 256
)

var errSendBufferFull = errors.New("client send buffer full")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Callers authenticate with a short-lived token, not cookies.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// LiveConfigFunc builds the live session config for a call in the given language.
type LiveConfigFunc func(lang entities.Language) live.Config

// Hub maintains the set of active live calls.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// done is closed once Run has returned.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	connector  repositories.LiveConnector
	liveConfig LiveConfigFunc
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(connector repositories.LiveConnector, liveConfig LiveConfigFunc, metrics *observability.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		connector:  connector,
		liveConfig: liveConfig,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx ends every call is hung up.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.id]; ok && current == client {
				delete(h.clients, client.id)
			}
			h.mu.Unlock()
			client.closeSend()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.id))

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			for _, client := range clients {
				client.hangup()
				client.closeSend()
			}
			return
		}
	}
}

// remove unregisters c, or just closes its send side once the hub stopped.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Count is the number of connected calls.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is one browser live call.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// id is the live token's session ID.
	id     string
	logger *zap.Logger

	manager *live.Manager

	mu     sync.Mutex
	mic    *socketMicrophone
	closed bool

	lastSeen atomic.Int64
}

// HandleWebSocket upgrades an authenticated request and starts a live session on it.
func (h *Hub) HandleWebSocket(c echo.Context, sessionID string, lang entities.Language) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan WriteData, sendBufferSize),
		id:     sessionID,
		logger: h.logger.With(zap.String("sessionID", sessionID)),
	}
	client.touch()

	manager, err := live.NewManager(h.liveConfig(lang), h.connector, &bridgeDevice{client: client}, live.Hooks{
		OnState: client.onState,
		OnLevel: func(rms float64) { _ = client.enqueueJSON(NewLevelMessage(rms)) },
		OnError: func(err error) { _ = client.enqueueJSON(NewErrorMessage("live_error", err.Error())) },
	}, h.metrics, client.logger)
	if err != nil {
		conn.Close()
		return err
	}
	client.manager = manager

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return errors.New("hub stopped")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
	go func() {
		if err := manager.Start(context.Background()); err != nil {
			client.logger.Warn("Live session failed to start", zap.Error(err))
		}
	}()
	return nil
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Client) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSeen.Load()))
}

func (c *Client) onState(state entities.LiveState) {
	_ = c.enqueueJSON(NewStateMessage(c.id, string(state)))
	if state == entities.LiveStateClosed {
		c.hub.remove(c)
	}
}

// enqueueJSON never blocks; a full buffer means the browser is not keeping up.
func (c *Client) enqueueJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errOutputClosed
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) hangup() {
	if err := c.manager.Stop(); err != nil {
		c.logger.Warn("Failed to stop live session", zap.Error(err))
	}
}

// readPump pumps browser messages into the live session. writePump owns the
// connection and closes it after flushing the send buffer.
func (c *Client) readPump() {
	defer func() {
		c.hangup()
		c.hub.remove(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		c.touch()

		switch messageType {
		case websocket.TextMessage:
			if !c.processMessage(message) {
				return
			}
		case websocket.BinaryMessage:
			c.pushAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// processMessage reports false when the browser hung up.
func (c *Client) processMessage(message []byte) bool {
	msg, err := ParseClientMessage(message)
	if err != nil {
		c.logger.Warn("Invalid client message", zap.Error(err))
		_ = c.enqueueJSON(NewErrorMessage("invalid_message", err.Error()))
		return true
	}

	switch msg.Type {
	case MessageTypeAudio:
		pcm, err := audio.Decode(msg.Data)
		if err != nil {
			_ = c.enqueueJSON(NewErrorMessage("invalid_audio", err.Error()))
			return true
		}
		c.pushAudio(pcm)
	case MessageTypeHangup:
		return false
	}
	return true
}

func (c *Client) pushAudio(pcm []byte) {
	c.mu.Lock()
	mic := c.mic
	c.mu.Unlock()
	if mic == nil {
		return
	}
	mic.Push(pcm)
}

// writePump pumps queued messages to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
