package usecase

import (
	"fmt"
	"strings"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/internal/decode"
)

const MarketModel = "gemini-3-pro-preview"

// MarketQuery asks for mandi price windows for one crop.
type MarketQuery struct {
	Crop     string
	District string
	// Mandis is a free-text list of target markets; empty means the district's major mandis.
	Mandis   string
	Language entities.Language
}

func BuildMarketRequest(q MarketQuery) (entities.Envelope, error) {
	if strings.TrimSpace(q.Crop) == "" {
		return entities.Envelope{}, ErrMissingCrop
	}
	if strings.TrimSpace(q.District) == "" {
		return entities.Envelope{}, ErrMissingDistrict
	}
	mandis := strings.TrimSpace(q.Mandis)
	if mandis == "" {
		mandis = "Major district mandis"
	}

	var windows []string
	for _, w := range entities.ForecastWindows {
		windows = append(windows, fmt.Sprintf(`{"timeframe": %q, "min": number, "max": number, "avg": number, "confidence": number}`, w))
	}

	prompt := joinLines(
		"You are an agricultural market intelligence AI for Madhya Pradesh.",
		fmt.Sprintf("Crop: %s", q.Crop),
		fmt.Sprintf("District: %s", q.District),
		fmt.Sprintf("Target Mandis: %s", mandis),
		districtProfile(q.District),
		"Use Google Search for historical mandi prices of the last 3-5 years, current arrivals and demand, weather impact on supply and the current MSP.",
		"Predict the mandi price range in rupees per quintal for the next 7, 15 and 30 days with minimum, average and maximum price and a confidence level from 0 to 100 for each period.",
		"Highlight the key factors influencing the price.",
		fmt.Sprintf("The summary and factors MUST be in %s.", languageForText(q.Language)),
		fmt.Sprintf(`Return strictly as JSON: {"predictions": [%s], "influencingFactors": [string], "summary": string}`, strings.Join(windows, ", ")),
	)
	return entities.Envelope{
		Capability: entities.CapabilityMarketForecast,
		Model:      MarketModel,
		Parts:      []entities.Part{entities.TextPart(prompt)},
		Options:    entities.GenerationOptions{GroundWithSearch: true, JSONOutput: true},
	}, nil
}

// MapMarketForecast always returns one window per ForecastWindows entry, in
// order. Windows are matched by timeframe label, then by position.
func MapMarketForecast(resp entities.GenerateResponse, lang entities.Language) entities.MarketForecast {
	obj := decode.DecodeObject(resp.Text)
	raw := obj.Objects("predictions")

	byLabel := make(map[string]decode.Object, len(raw))
	for _, p := range raw {
		if tf, ok := p.String("timeframe"); ok {
			byLabel[windowKey(tf)] = p
		}
	}

	predictions := make([]entities.PriceWindow, len(entities.ForecastWindows))
	for i, label := range entities.ForecastWindows {
		p, ok := byLabel[windowKey(label)]
		if !ok && len(byLabel) == 0 && i < len(raw) {
			p = raw[i]
		}
		predictions[i] = entities.PriceWindow{
			Timeframe:  label,
			Min:        p.Number("min"),
			Max:        p.Number("max"),
			Avg:        p.Number("avg"),
			Confidence: percent(p.Number("confidence")),
		}
	}

	return entities.MarketForecast{
		Predictions:        predictions,
		InfluencingFactors: stringsOrNoData(obj, "influencingFactors", lang),
		Summary:            obj.StringOr("summary", entities.NoData(lang)),
	}
}

// windowKey reduces "7 Days", "7 days" and "7-day" to "7".
func windowKey(label string) string {
	var b strings.Builder
	for _, r := range label {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.ToLower(strings.TrimSpace(label))
	}
	return b.String()
}

func languageForText(lang entities.Language) string {
	if lang == entities.LanguageHindi {
		return "simple, clear Hindi (हिन्दी)"
	}
	return "English"
}
