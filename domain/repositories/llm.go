package repositories

import (
	"context"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

// GenerativeModel abstracts the hosted model behind every synchronous advisory call.
type GenerativeModel interface {
	// Generate sends one envelope and returns the model's primary text, any
	// inline binary parts and grounding sources.
	Generate(ctx context.Context, envelope entities.Envelope) (entities.GenerateResponse, error)
}

// VideoGenerator runs the long-running video generation call to completion.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req entities.VideoRequest) (entities.GeneratedMedia, error)
}
