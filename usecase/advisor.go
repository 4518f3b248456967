// Package usecase turns farmer inputs into model requests and model output
// into typed advisories. Every remote call goes through the retry invoker.
package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/retry"
)

// ErrInvalidInput wraps every input rejection so transports can map it to a client error.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrNoImages         = fmt.Errorf("%w: at least one crop image is required", ErrInvalidInput)
	ErrTooManyImages    = fmt.Errorf("%w: at most %d crop images are accepted", ErrInvalidInput, MaxPestImages)
	ErrEmptyPrompt      = fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	ErrEmptyMessage     = fmt.Errorf("%w: message is required", ErrInvalidInput)
	ErrMissingCrop      = fmt.Errorf("%w: crop is required", ErrInvalidInput)
	ErrMissingDistrict  = fmt.Errorf("%w: district is required", ErrInvalidInput)
	ErrBadAspectRatio   = fmt.Errorf("%w: unsupported aspect ratio", ErrInvalidInput)
	ErrUnknownChatRole  = fmt.Errorf("%w: chat role must be user or model", ErrInvalidInput)
	ErrSoilOutOfRange   = fmt.Errorf("%w: soil values out of range", ErrInvalidInput)
	ErrNoImageGenerated = errors.New("model returned no image")
	ErrNotConfigured    = errors.New("capability not configured")
)

// IsInvalidInput reports whether err is a caller mistake rather than a remote failure.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, entities.ErrMissingMediaType) ||
		errors.Is(err, entities.ErrEmptyEnvelope)
}

// Advisor runs the advisory capabilities against the hosted model.
type Advisor struct {
	model   repositories.GenerativeModel
	video   repositories.VideoGenerator
	speech  repositories.TextToSpeech
	invoker *retry.Invoker
	logger  *zap.Logger
}

// NewAdvisor wires the advisor. video and speech may be nil, in which case
// those capabilities report an error.
func NewAdvisor(
	model repositories.GenerativeModel,
	video repositories.VideoGenerator,
	speech repositories.TextToSpeech,
	invoker *retry.Invoker,
	logger *zap.Logger,
) (*Advisor, error) {
	if model == nil {
		return nil, fmt.Errorf("generative model is required")
	}
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	return &Advisor{
		model:   model,
		video:   video,
		speech:  speech,
		invoker: invoker,
		logger:  logger,
	}, nil
}

// generate validates the envelope locally, then sends it through the invoker.
func (a *Advisor) generate(ctx context.Context, envelope entities.Envelope) (entities.GenerateResponse, error) {
	if err := envelope.Validate(); err != nil {
		return entities.GenerateResponse{}, err
	}
	resp, err := retry.Do(ctx, a.invoker, string(envelope.Capability), func(ctx context.Context) (entities.GenerateResponse, error) {
		return a.model.Generate(ctx, envelope)
	})
	if err != nil {
		return entities.GenerateResponse{}, err
	}
	a.logger.Debug("Model responded",
		zap.String("capability", string(envelope.Capability)),
		zap.String("model", envelope.Model),
		zap.Int("textLength", len(resp.Text)),
		zap.Int("inlineParts", len(resp.Inline)),
		zap.Int("sources", len(resp.Sources)))
	return resp, nil
}

func (a *Advisor) Recommend(ctx context.Context, sample entities.SoilSample, lang entities.Language) (entities.Recommendation, error) {
	envelope, err := BuildRecommendationRequest(sample, lang)
	if err != nil {
		return entities.Recommendation{}, err
	}
	resp, err := a.generate(ctx, envelope)
	if err != nil {
		return entities.Recommendation{}, err
	}
	return MapRecommendation(resp, lang), nil
}

func (a *Advisor) AnalyzePests(ctx context.Context, images []entities.Part, lang entities.Language) (entities.PestDiagnosis, error) {
	envelope, err := BuildPestRequest(images, lang)
	if err != nil {
		return entities.PestDiagnosis{}, err
	}
	resp, err := a.generate(ctx, envelope)
	if err != nil {
		return entities.PestDiagnosis{}, err
	}
	return MapPestDiagnosis(resp, lang), nil
}

func (a *Advisor) ForecastMarket(ctx context.Context, query MarketQuery) (entities.MarketForecast, error) {
	envelope, err := BuildMarketRequest(query)
	if err != nil {
		return entities.MarketForecast{}, err
	}
	resp, err := a.generate(ctx, envelope)
	if err != nil {
		return entities.MarketForecast{}, err
	}
	return MapMarketForecast(resp, query.Language), nil
}

func (a *Advisor) Weather(ctx context.Context, district string, lang entities.Language) (entities.WeatherSnapshot, error) {
	envelope, err := BuildWeatherRequest(district, lang)
	if err != nil {
		return entities.WeatherSnapshot{}, err
	}
	resp, err := a.generate(ctx, envelope)
	if err != nil {
		return entities.WeatherSnapshot{}, err
	}
	return MapWeather(resp, lang), nil
}
