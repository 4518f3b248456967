package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

// ErrNoVideo is returned when the operation finishes without a video.
var ErrNoVideo = errors.New("video generation returned no video")

// GenerateVideo starts a video operation, polls it until done and downloads
// the result.
func (g *GeminiLLM) GenerateVideo(ctx context.Context, req entities.VideoRequest) (entities.GeneratedMedia, error) {
	if err := req.Validate(); err != nil {
		return entities.GeneratedMedia{}, err
	}
	client, err := g.genaiClient(ctx)
	if err != nil {
		return entities.GeneratedMedia{}, err
	}

	var image *genai.Image
	if req.Image != nil {
		image = &genai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	op, err := client.Models.GenerateVideos(ctx, req.Model, req.Prompt, image, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
	})
	if err != nil {
		return entities.GeneratedMedia{}, err
	}
	g.logger.Info("Video generation started", zap.String("operation", op.Name), zap.String("model", req.Model))

	ticker := time.NewTicker(g.config.VideoPollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return entities.GeneratedMedia{}, ctx.Err()
		case <-ticker.C:
		}
		op, err = client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return entities.GeneratedMedia{}, fmt.Errorf("failed to poll video operation: %w", err)
		}
		g.logger.Debug("Polled video operation", zap.String("operation", op.Name), zap.Bool("done", op.Done))
	}

	if len(op.Error) > 0 {
		return entities.GeneratedMedia{}, fmt.Errorf("video operation failed: %v", op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return entities.GeneratedMedia{}, ErrNoVideo
	}

	video := op.Response.GeneratedVideos[0]
	mimeType := video.Video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	data := video.Video.VideoBytes
	if len(data) == 0 {
		data, err = client.Files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(video), nil)
		if err != nil {
			return entities.GeneratedMedia{}, fmt.Errorf("failed to download video: %w", err)
		}
	}

	g.logger.Info("Video generation finished", zap.String("operation", op.Name), zap.Int("bytes", len(data)))
	return entities.GeneratedMedia{MIMEType: mimeType, Data: data, URI: video.Video.URI}, nil
}
