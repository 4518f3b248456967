package entities

import (
	"errors"
	"fmt"
)

// Capability names one advisory call.
type Capability string

const (
	CapabilityRecommendation Capability = "recommendation"
	CapabilityPestAnalysis   Capability = "pest_analysis"
	CapabilityChat           Capability = "chat"
	CapabilityMarketForecast Capability = "market_forecast"
	CapabilityWeather        Capability = "weather"
	CapabilityImageGenerate  Capability = "image_generate"
	CapabilityImageEdit      Capability = "image_edit"
	CapabilityVideo          Capability = "video"
	CapabilitySpeech         Capability = "speech"
)

var (
	ErrMissingMediaType  = errors.New("inline part has no media type")
	ErrEmptyEnvelope     = errors.New("envelope has no parts")
	ErrMissingCapability = errors.New("envelope has no capability")
	ErrMissingModel      = errors.New("envelope has no model")
)

// Part is either text or an inline binary payload. Inline parts must declare MIMEType.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func InlinePart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// IsInline reports whether the part carries binary data.
func (p Part) IsInline() bool {
	return p.Data != nil
}

// GenerationOptions are the optional hints a generation call can carry.
type GenerationOptions struct {
	GroundWithSearch bool
	JSONOutput       bool
	// ThinkingBudget of zero leaves the model default in place.
	ThinkingBudget   int32
	AudioOutput      bool
	Voice            string
	ImageAspectRatio string
	ImageSize        string
}

// Envelope is a single generation request: the current parts in order, plus
// any prior conversation turns.
type Envelope struct {
	Capability        Capability
	Model             string
	SystemInstruction string
	History           []ChatMessage
	Parts             []Part
	Options           GenerationOptions
}

// Validate enforces the envelope invariants before anything goes on the wire.
func (e Envelope) Validate() error {
	if e.Capability == "" {
		return ErrMissingCapability
	}
	if e.Model == "" {
		return ErrMissingModel
	}
	if len(e.Parts) == 0 {
		return ErrEmptyEnvelope
	}
	for i, p := range e.Parts {
		if p.IsInline() && p.MIMEType == "" {
			return fmt.Errorf("part %d: %w", i, ErrMissingMediaType)
		}
	}
	return nil
}

// VideoRequest is the input of the long-running video generation call.
type VideoRequest struct {
	Model       string
	Prompt      string
	Image       *Part
	AspectRatio string
	Resolution  string
}

func (r VideoRequest) Validate() error {
	if r.Model == "" {
		return ErrMissingModel
	}
	if r.Prompt == "" {
		return ErrEmptyEnvelope
	}
	if r.Image != nil && r.Image.MIMEType == "" {
		return fmt.Errorf("seed image: %w", ErrMissingMediaType)
	}
	return nil
}

// GenerateResponse is what a synchronous generation call returns.
type GenerateResponse struct {
	Text string
	// Thoughts is the model's thought summary when thinking was requested.
	Thoughts string
	Inline   []Part
	Sources  []Source
}
