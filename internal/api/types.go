package api

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

// ImageInput is a base64 image sent by the browser. Data may be a data URL.
type ImageInput struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

func (in ImageInput) part() (entities.Part, error) {
	data, mimeType := in.Data, in.MIMEType
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return entities.Part{}, fmt.Errorf("malformed data URL")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return entities.Part{}, fmt.Errorf("image is not valid base64: %w", err)
	}
	return entities.InlinePart(raw, mimeType), nil
}

type RecommendationRequest struct {
	entities.SoilSample
	Language string `json:"language"`
}

type PestAnalysisRequest struct {
	Images   []ImageInput `json:"images"`
	Language string       `json:"language"`
}

type ChatRequest struct {
	History  []entities.ChatMessage `json:"history"`
	Message  string                 `json:"message"`
	Language string                 `json:"language"`
}

// VoiceChatRequest carries a recorded question. Audio is base64; Encoding
// defaults to LINEAR16.
type VoiceChatRequest struct {
	Audio      string                 `json:"audio"`
	SampleRate int                    `json:"sampleRate"`
	Encoding   string                 `json:"encoding"`
	History    []entities.ChatMessage `json:"history"`
	Language   string                 `json:"language"`
	Speak      bool                   `json:"speak"`
}

type VoiceChatResponse struct {
	Transcript string               `json:"transcript"`
	Reply      entities.ChatMessage `json:"reply"`
}

type MarketForecastRequest struct {
	Crop     string `json:"crop"`
	District string `json:"district"`
	Mandis   string `json:"mandis"`
	Language string `json:"language"`
}

type WeatherRequest struct {
	District string `json:"district"`
	Language string `json:"language"`
}

type ImageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	Size        string `json:"size"`
}

type ImageEditRequest struct {
	Image  ImageInput `json:"image"`
	Prompt string     `json:"prompt"`
}

type VideoRequest struct {
	Prompt      string      `json:"prompt"`
	AspectRatio string      `json:"aspectRatio"`
	Image       *ImageInput `json:"image,omitempty"`
}

// MediaResponse returns generated media inline as base64, or by URI when
// the provider only hands out a link.
type MediaResponse struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

func newMediaResponse(m entities.GeneratedMedia) MediaResponse {
	resp := MediaResponse{MIMEType: m.MIMEType, URI: m.URI}
	if len(m.Data) > 0 {
		resp.Data = base64.StdEncoding.EncodeToString(m.Data)
	}
	return resp
}

type SpeechRequest struct {
	Text string `json:"text"`
}

// SpeechResponse is base64 PCM16 mono.
type SpeechResponse struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sampleRate"`
}

type LiveTokenRequest struct {
	Language string `json:"language"`
}

// LiveTokenResponse authorizes one websocket live call.
type LiveTokenResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
