package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
	"github.com/mpkisan/kisan-ai/server/internal/live"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
)

type fakeStream struct {
	frames chan []byte
	once   sync.Once
	closed chan struct{}
}

func (s *fakeStream) SendAudio(frame []byte, mimeType string) error {
	s.frames <- frame
	return nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeConnector struct {
	connected chan repositories.LiveCallbacks
	stream    *fakeStream
	config    repositories.LiveConfig
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		connected: make(chan repositories.LiveCallbacks, 1),
		stream:    &fakeStream{frames: make(chan []byte, 8), closed: make(chan struct{})},
	}
}

func (c *fakeConnector) Connect(ctx context.Context, config repositories.LiveConfig, callbacks repositories.LiveCallbacks) (repositories.LiveStream, error) {
	c.config = config
	c.connected <- callbacks
	return c.stream, nil
}

type hubHarness struct {
	hub       *Hub
	connector *fakeConnector
	server    *httptest.Server
	cancel    context.CancelFunc
}

func newHubHarness(t *testing.T) *hubHarness {
	t.Helper()
	// Pumps outlive the test, so they must not log through t.
	logger := zap.NewNop()
	connector := newFakeConnector()
	hub := NewHub(connector, func(lang entities.Language) live.Config {
		return live.Config{Language: lang, SystemInstruction: "advise farmers in " + lang.Name()}
	}, observability.NewMetrics("test"), logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws/live", func(c echo.Context) error {
		return hub.HandleWebSocket(c, "call-1", entities.LanguageHindi)
	})
	server := httptest.NewServer(e)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &hubHarness{hub: hub, connector: connector, server: server, cancel: cancel}
}

func (h *hubHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads server messages until one of the wanted type arrives.
// Level updates are skipped.
func readType(t *testing.T, conn *websocket.Conn, want MessageType) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(payload, &msg))
		if MessageType(msg["type"].(string)) == want {
			return msg
		}
		if msg["type"] == string(MessageTypeLevel) {
			continue
		}
		t.Fatalf("expected %s message, got %s", want, payload)
	}
}

// requireNormalClose reads until the server's close frame, skipping level
// updates still in flight.
func requireNormalClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			return
		}
		require.Contains(t, string(payload), `"type":"level"`)
	}
}

func readState(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	return readType(t, conn, MessageTypeState)["state"].(string)
}

func TestHubLiveCall(t *testing.T) {
	h := newHubHarness(t)
	conn := h.dial(t)

	require.Equal(t, string(entities.LiveStateConnecting), readState(t, conn))

	var callbacks repositories.LiveCallbacks
	select {
	case callbacks = <-h.connector.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("live session never connected")
	}
	require.Equal(t, "advise farmers in Hindi", h.connector.config.SystemInstruction)
	require.Eventually(t, func() bool { return h.hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	callbacks.OnOpen()
	require.Equal(t, string(entities.LiveStateStreaming), readState(t, conn))

	// One full capture frame from the browser goes out as one PCM frame.
	pcm := make([]byte, entities.CaptureFrameSize*2)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeAudio, Data: audio.Encode(pcm)}))
	select {
	case frame := <-h.connector.stream.frames:
		require.Len(t, frame, len(pcm))
	case <-time.After(5 * time.Second):
		t.Fatal("captured frame was never sent")
	}

	// Model speech is forwarded as a play message. Two seconds is long
	// enough to still be playing when the interruption arrives.
	callbacks.OnMessage(repositories.LiveMessage{Audio: make([]byte, 96000), MIMEType: "audio/pcm;rate=24000"})
	play := readType(t, conn, MessageTypePlay)
	sourceID := play["sourceId"].(string)
	require.NotEmpty(t, sourceID)
	data, err := audio.Decode(play["data"].(string))
	require.NoError(t, err)
	require.Len(t, data, 96000)

	// Barge-in silences what the browser has queued.
	callbacks.OnMessage(repositories.LiveMessage{Interrupted: true})
	stop := readType(t, conn, MessageTypeStop)
	require.Equal(t, []any{sourceID}, stop["sourceIds"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeHangup}))
	require.Equal(t, string(entities.LiveStateClosed), readState(t, conn))

	// The closed state is flushed before a clean close frame.
	requireNormalClose(t, conn)

	select {
	case <-h.connector.stream.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("remote stream was not closed on hangup")
	}
	require.Eventually(t, func() bool { return h.hub.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubRejectsBadClientMessages(t *testing.T) {
	h := newHubHarness(t)
	conn := h.dial(t)
	require.Equal(t, string(entities.LiveStateConnecting), readState(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	msg := readType(t, conn, MessageTypeError)
	require.Equal(t, "invalid_message", msg["code"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeAudio, Data: "%%%"}))
	msg = readType(t, conn, MessageTypeError)
	require.Equal(t, "invalid_audio", msg["code"])
}

func TestHubRemoteCloseEndsCall(t *testing.T) {
	h := newHubHarness(t)
	conn := h.dial(t)
	require.Equal(t, string(entities.LiveStateConnecting), readState(t, conn))

	callbacks := <-h.connector.connected
	callbacks.OnOpen()
	require.Equal(t, string(entities.LiveStateStreaming), readState(t, conn))

	callbacks.OnClose()
	require.Equal(t, string(entities.LiveStateClosed), readState(t, conn))
	requireNormalClose(t, conn)
}

func TestHubShutdownHangsUpCalls(t *testing.T) {
	h := newHubHarness(t)
	conn := h.dial(t)
	require.Equal(t, string(entities.LiveStateConnecting), readState(t, conn))
	<-h.connector.connected

	h.cancel()
	require.Equal(t, string(entities.LiveStateClosed), readState(t, conn))
	require.Eventually(t, func() bool { return h.hub.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSessionCleanupClosesIdleCalls(t *testing.T) {
	h := newHubHarness(t)
	conn := h.dial(t)
	require.Equal(t, string(entities.LiveStateConnecting), readState(t, conn))
	<-h.connector.connected
	require.Eventually(t, func() bool { return h.hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	cleanup := NewSessionCleanupService(h.hub, time.Hour, time.Minute, zap.NewNop())
	require.Equal(t, 0, cleanup.runCleanup())

	cleanup.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	require.Equal(t, 1, cleanup.runCleanup())
	require.Eventually(t, func() bool { return h.hub.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}
