package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/internal/audio"
	"github.com/mpkisan/kisan-ai/server/internal/retry"
)

const (
	ImageModel     = "gemini-3-pro-image-preview"
	ImageEditModel = "gemini-2.5-flash-image"
	VideoModel     = "veo-3.1-fast-generate-preview"

	defaultImageAspectRatio = "1:1"
	defaultImageSize        = "1K"
	defaultVideoAspectRatio = "16:9"
	videoResolution         = "720p"
)

var (
	imageAspectRatios = map[string]bool{"1:1": true, "3:4": true, "4:3": true, "9:16": true, "16:9": true}
	imageSizes        = map[string]bool{"1K": true, "2K": true, "4K": true}
	videoAspectRatios = map[string]bool{"16:9": true, "9:16": true}
)

// ImagePrompt describes an illustration to generate.
type ImagePrompt struct {
	Prompt      string
	AspectRatio string
	Size        string
}

// VideoPrompt describes a short clip, optionally animated from a seed image.
type VideoPrompt struct {
	Prompt      string
	AspectRatio string
	Image       *entities.Part
}

func BuildImageRequest(p ImagePrompt) (entities.Envelope, error) {
	prompt := strings.TrimSpace(p.Prompt)
	if prompt == "" {
		return entities.Envelope{}, ErrEmptyPrompt
	}
	ratio := p.AspectRatio
	if ratio == "" {
		ratio = defaultImageAspectRatio
	}
	size := strings.ToUpper(p.Size)
	if size == "" {
		size = defaultImageSize
	}
	if !imageAspectRatios[ratio] {
		return entities.Envelope{}, fmt.Errorf("%w: %q", ErrBadAspectRatio, ratio)
	}
	if !imageSizes[size] {
		return entities.Envelope{}, fmt.Errorf("%w: image size %q", ErrInvalidInput, p.Size)
	}
	return entities.Envelope{
		Capability: entities.CapabilityImageGenerate,
		Model:      ImageModel,
		Parts:      []entities.Part{entities.TextPart(prompt)},
		Options:    entities.GenerationOptions{ImageAspectRatio: ratio, ImageSize: size},
	}, nil
}

// BuildImageEditRequest sends the source image followed by the edit instruction.
func BuildImageEditRequest(image entities.Part, prompt string) (entities.Envelope, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return entities.Envelope{}, ErrEmptyPrompt
	}
	if len(image.Data) == 0 {
		return entities.Envelope{}, ErrNoImages
	}
	envelope := entities.Envelope{
		Capability: entities.CapabilityImageEdit,
		Model:      ImageEditModel,
		Parts:      []entities.Part{entities.InlinePart(image.Data, image.MIMEType), entities.TextPart(prompt)},
	}
	return envelope, envelope.Validate()
}

// MapGeneratedImage returns the first inline image, or nil.
func MapGeneratedImage(resp entities.GenerateResponse) *entities.GeneratedMedia {
	for _, part := range resp.Inline {
		if strings.HasPrefix(part.MIMEType, "image/") && len(part.Data) > 0 {
			return &entities.GeneratedMedia{MIMEType: part.MIMEType, Data: part.Data}
		}
	}
	return nil
}

func BuildVideoRequest(p VideoPrompt) (entities.VideoRequest, error) {
	prompt := strings.TrimSpace(p.Prompt)
	if prompt == "" {
		return entities.VideoRequest{}, ErrEmptyPrompt
	}
	ratio := p.AspectRatio
	if ratio == "" {
		ratio = defaultVideoAspectRatio
	}
	if !videoAspectRatios[ratio] {
		return entities.VideoRequest{}, fmt.Errorf("%w: %q", ErrBadAspectRatio, ratio)
	}
	req := entities.VideoRequest{
		Model:       VideoModel,
		Prompt:      prompt,
		Image:       p.Image,
		AspectRatio: ratio,
		Resolution:  videoResolution,
	}
	return req, req.Validate()
}

func (a *Advisor) GenerateImage(ctx context.Context, p ImagePrompt) (entities.GeneratedMedia, error) {
	envelope, err := BuildImageRequest(p)
	if err != nil {
		return entities.GeneratedMedia{}, err
	}
	return a.generateImage(ctx, envelope)
}

func (a *Advisor) EditImage(ctx context.Context, image entities.Part, prompt string) (entities.GeneratedMedia, error) {
	envelope, err := BuildImageEditRequest(image, prompt)
	if err != nil {
		return entities.GeneratedMedia{}, err
	}
	return a.generateImage(ctx, envelope)
}

func (a *Advisor) generateImage(ctx context.Context, envelope entities.Envelope) (entities.GeneratedMedia, error) {
	resp, err := a.generate(ctx, envelope)
	if err != nil {
		return entities.GeneratedMedia{}, err
	}
	media := MapGeneratedImage(resp)
	if media == nil {
		return entities.GeneratedMedia{}, ErrNoImageGenerated
	}
	return *media, nil
}

// GenerateVideo runs the long-running call to completion. The whole poll
// loop is one attempt as far as the invoker is concerned.
func (a *Advisor) GenerateVideo(ctx context.Context, p VideoPrompt) (entities.GeneratedMedia, error) {
	if a.video == nil {
		return entities.GeneratedMedia{}, fmt.Errorf("%w: video generation", ErrNotConfigured)
	}
	req, err := BuildVideoRequest(p)
	if err != nil {
		return entities.GeneratedMedia{}, err
	}
	media, err := retry.Do(ctx, a.invoker, string(entities.CapabilityVideo), func(ctx context.Context) (entities.GeneratedMedia, error) {
		return a.video.GenerateVideo(ctx, req)
	})
	if err != nil {
		return entities.GeneratedMedia{}, err
	}
	a.logger.Info("Video generated",
		zap.String("mimeType", media.MIMEType),
		zap.Int("bytes", len(media.Data)))
	return media, nil
}

// Synthesize turns text into base64 PCM at 24 kHz mono.
func (a *Advisor) Synthesize(ctx context.Context, text string) (string, error) {
	if a.speech == nil {
		return "", fmt.Errorf("%w: speech synthesis", ErrNotConfigured)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyPrompt
	}
	pcm, err := retry.Do(ctx, a.invoker, string(entities.CapabilitySpeech), func(ctx context.Context) ([]byte, error) {
		chunks, err := a.speech.ConvertTextToSpeech(ctx, text)
		if err != nil {
			return nil, err
		}
		return audio.Collect(ctx, chunks)
	})
	if err != nil {
		return "", err
	}
	return audio.Encode(pcm), nil
}
