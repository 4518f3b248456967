package usecase

import (
	"fmt"
	"strings"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/internal/decode"
)

const RecommendationModel = "gemini-3-pro-preview"

// ValidateSoilSample checks the soil test values are physically plausible.
func ValidateSoilSample(s entities.SoilSample) error {
	if strings.TrimSpace(s.District) == "" {
		return ErrMissingDistrict
	}
	if s.Nitrogen < 0 || s.Phosphorus < 0 || s.Potassium < 0 {
		return fmt.Errorf("%w: nutrient values must not be negative", ErrSoilOutOfRange)
	}
	if s.PH < 0 || s.PH > 14 {
		return fmt.Errorf("%w: pH %.1f", ErrSoilOutOfRange, s.PH)
	}
	return nil
}

func BuildRecommendationRequest(sample entities.SoilSample, lang entities.Language) (entities.Envelope, error) {
	if err := ValidateSoilSample(sample); err != nil {
		return entities.Envelope{}, err
	}
	prompt := joinLines(
		advisorInstruction,
		fmt.Sprintf("Analyze the soil for a field in %s district.", sample.District),
		districtProfile(sample.District),
		fmt.Sprintf("Soil test: Nitrogen %g kg/ha, Phosphorus %g kg/ha, Potassium %g kg/ha, pH %g.",
			sample.Nitrogen, sample.Phosphorus, sample.Potassium, sample.PH),
		replyIn(lang),
		`Return JSON: {"suggestedCrops": [string], "fertilizerAdvice": string, "irrigationSchedule": string, "risks": [string], "thoughtProcess": string}`,
	)
	return entities.Envelope{
		Capability: entities.CapabilityRecommendation,
		Model:      RecommendationModel,
		Parts:      []entities.Part{entities.TextPart(prompt)},
		Options: entities.GenerationOptions{
			JSONOutput:     true,
			ThinkingBudget: deepThinkingBudget,
		},
	}, nil
}

// MapRecommendation fills every field, substituting the no-data text for anything missing.
func MapRecommendation(resp entities.GenerateResponse, lang entities.Language) entities.Recommendation {
	obj := decode.DecodeObject(resp.Text)
	noData := entities.NoData(lang)

	thoughts := obj.StringOr("thoughtProcess", strings.TrimSpace(resp.Thoughts))
	return entities.Recommendation{
		SuggestedCrops:     stringsOrNoData(obj, "suggestedCrops", lang),
		FertilizerAdvice:   obj.StringOr("fertilizerAdvice", noData),
		IrrigationSchedule: obj.StringOr("irrigationSchedule", noData),
		Risks:              stringsOrNoData(obj, "risks", lang),
		ThoughtProcess:     thoughts,
	}
}

func stringsOrNoData(obj decode.Object, key string, lang entities.Language) []string {
	if list := obj.Strings(key); len(list) > 0 {
		return list
	}
	return []string{entities.NoData(lang)}
}
