package websocket

import (
	"encoding/json"
	"fmt"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Browser to server.
const (
	MessageTypeAudio  MessageType = "audio"
	MessageTypeHangup MessageType = "hangup"
)

// Server to browser.
const (
	MessageTypeState MessageType = "state"
	MessageTypePlay  MessageType = "play"
	MessageTypeStop  MessageType = "stop"
	MessageTypeLevel MessageType = "level"
	MessageTypeError MessageType = "error"
)

// ClientMessage is anything the browser sends. Data is base64 PCM16 at 16 kHz mono.
type ClientMessage struct {
	Type MessageType `json:"type"`
	Data string      `json:"data,omitempty"`
}

// StateMessage reports a live session state change.
type StateMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	State     string      `json:"state"`
}

// PlayMessage asks the browser to play base64 PCM16 (24 kHz mono) at StartAt
// seconds on the session output clock.
type PlayMessage struct {
	Type     MessageType `json:"type"`
	SourceID string      `json:"sourceId"`
	StartAt  float64     `json:"startAt"`
	Data     string      `json:"data"`
}

// StopMessage silences scheduled sources, e.g. on barge-in.
type StopMessage struct {
	Type      MessageType `json:"type"`
	SourceIDs []string    `json:"sourceIds"`
}

type LevelMessage struct {
	Type MessageType `json:"type"`
	RMS  float64     `json:"rms"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// ParseClientMessage parses and validates a browser message.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	switch msg.Type {
	case MessageTypeAudio:
		if msg.Data == "" {
			return nil, fmt.Errorf("audio message has no data")
		}
	case MessageTypeHangup:
	case "":
		return nil, fmt.Errorf("message missing type field")
	default:
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}
	return &msg, nil
}

func NewStateMessage(sessionID, state string) StateMessage {
	return StateMessage{Type: MessageTypeState, SessionID: sessionID, State: state}
}

func NewPlayMessage(sourceID string, startAt float64, data string) PlayMessage {
	return PlayMessage{Type: MessageTypePlay, SourceID: sourceID, StartAt: startAt, Data: data}
}

func NewStopMessage(sourceIDs ...string) StopMessage {
	return StopMessage{Type: MessageTypeStop, SourceIDs: sourceIDs}
}

func NewLevelMessage(rms float64) LevelMessage {
	return LevelMessage{Type: MessageTypeLevel, RMS: rms}
}

func NewErrorMessage(code, message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Code: code, Message: message}
}
