// Command liveprobe checks a running server's live voice endpoint: it gets a
// token, opens the websocket, streams a second of silence and prints what
// comes back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/internal/api"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
	kisanws "github.com/mpkisan/kisan-ai/server/internal/websocket"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	lang := flag.String("lang", "en", "call language: en or hi")
	wait := flag.Duration("wait", 10*time.Second, "how long to listen for replies")
	flag.Parse()

	base, err := url.Parse(*server)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	// Step 1: Get a live token
	fmt.Println("Step 1: Getting live session token...")

	reqBody, _ := json.Marshal(api.LiveTokenRequest{Language: *lang})
	resp, err := http.Post(base.JoinPath("/api/v1/live/token").String(), "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatalf("Failed to request token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Token request failed with status: %d", resp.StatusCode)
	}

	var token api.LiveTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		log.Fatalf("Failed to decode token response: %v", err)
	}
	fmt.Printf("✓ Token issued for session %s\n", token.SessionID)

	// Step 2: Connect to the live websocket
	fmt.Println("Step 2: Connecting to WebSocket...")

	wsURL := *base.JoinPath("/ws/live")
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	q := wsURL.Query()
	q.Set("token", token.Token)
	wsURL.RawQuery = q.Encode()

	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if wsResp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", wsResp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()
	fmt.Println("✓ WebSocket connected")

	// Step 3: Stream one second of silence in capture-sized frames
	fmt.Println("Step 3: Streaming one second of silence...")

	frame := audio.Encode(make([]byte, entities.CaptureFrameSize*2))
	for sent := 0; sent < entities.CaptureSampleRate; sent += entities.CaptureFrameSize {
		if err := conn.WriteJSON(kisanws.ClientMessage{Type: kisanws.MessageTypeAudio, Data: frame}); err != nil {
			log.Fatalf("Failed to send audio: %v", err)
		}
		time.Sleep(time.Duration(entities.CaptureFrameSize) * time.Second / entities.CaptureSampleRate)
	}

	// Step 4: Print server messages until the wait runs out
	fmt.Println("Step 4: Listening for server messages...")

	deadline := time.Now().Add(*wait)
	conn.SetReadDeadline(deadline)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg struct {
			Type  kisanws.MessageType `json:"type"`
			State string              `json:"state"`
		}
		_ = json.Unmarshal(message, &msg)
		switch msg.Type {
		case kisanws.MessageTypePlay:
			fmt.Println("  play: received speech chunk")
		case kisanws.MessageTypeLevel:
		default:
			fmt.Printf("  %s\n", message)
		}
		if msg.Type == kisanws.MessageTypeState && msg.State == string(entities.LiveStateClosed) {
			break
		}
	}

	_ = conn.WriteJSON(kisanws.ClientMessage{Type: kisanws.MessageTypeHangup})
	fmt.Println("✓ Live probe finished")
}
