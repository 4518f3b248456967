package usecase

import (
	"fmt"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/internal/decode"
)

const (
	PestModel     = "gemini-3-flash-preview"
	MaxPestImages = 3
)

// BuildPestRequest sends the crop images first, then the instruction.
// Each image must carry its media type.
func BuildPestRequest(images []entities.Part, lang entities.Language) (entities.Envelope, error) {
	switch {
	case len(images) == 0:
		return entities.Envelope{}, ErrNoImages
	case len(images) > MaxPestImages:
		return entities.Envelope{}, ErrTooManyImages
	}

	parts := make([]entities.Part, 0, len(images)+1)
	for i, img := range images {
		if len(img.Data) == 0 {
			return entities.Envelope{}, fmt.Errorf("%w: image %d is empty", ErrInvalidInput, i)
		}
		parts = append(parts, entities.InlinePart(img.Data, img.MIMEType))
	}
	parts = append(parts, entities.TextPart(joinLines(
		"Identify the pest or disease affecting this crop in Madhya Pradesh.",
		replyIn(lang),
		`Return JSON: {"pestName": string, "confidence": number 0-100, "remedy": string, "preventiveMeasures": [string]}`,
	)))

	envelope := entities.Envelope{
		Capability: entities.CapabilityPestAnalysis,
		Model:      PestModel,
		Parts:      parts,
		Options:    entities.GenerationOptions{JSONOutput: true},
	}
	return envelope, envelope.Validate()
}

func MapPestDiagnosis(resp entities.GenerateResponse, lang entities.Language) entities.PestDiagnosis {
	obj := decode.DecodeObject(resp.Text)
	noData := entities.NoData(lang)
	return entities.PestDiagnosis{
		PestName:           obj.StringOr("pestName", noData),
		Confidence:         percent(obj.Number("confidence")),
		Remedy:             obj.StringOr("remedy", noData),
		PreventiveMeasures: stringsOrNoData(obj, "preventiveMeasures", lang),
	}
}

// percent keeps a confidence on the 0-100 scale. Fractions are scaled up and
// anything outside the range is dropped.
func percent(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	if c > 0 && c <= 1 {
		c *= 100
	}
	if c < 0 || c > 100 {
		return nil
	}
	return &c
}
