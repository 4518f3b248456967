package usecase

import (
	"fmt"
	"strings"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/internal/decode"
)

const WeatherModel = "gemini-3-pro-preview"

// BuildWeatherRequest asks for a grounded snapshot. Grounded calls cannot
// force JSON output, so the reply goes through the tolerant decoder.
func BuildWeatherRequest(district string, lang entities.Language) (entities.Envelope, error) {
	district = strings.TrimSpace(district)
	if district == "" {
		return entities.Envelope{}, ErrMissingDistrict
	}
	prompt := joinLines(
		fmt.Sprintf("Weather for %s, Madhya Pradesh, India as JSON.", district),
		districtProfile(district),
		"Include current conditions, a 5 day forecast, how suitable the coming days are for sowing and any warnings for farmers.",
		fmt.Sprintf("Text values must be in %s.", languageForText(lang)),
		`Return JSON: {"current": {"temp": string, "condition": string, "feelsLike": string, "humidity": string, "windSpeed": string, "uvIndex": string}, "forecast": [{"day": string, "condition": string, "high": string, "low": string}], "sowingSuitability": string, "agriWarnings": [string]}`,
	)
	return entities.Envelope{
		Capability: entities.CapabilityWeather,
		Model:      WeatherModel,
		Parts:      []entities.Part{entities.TextPart(prompt)},
		Options:    entities.GenerationOptions{GroundWithSearch: true},
	}, nil
}

// MapWeather decodes the snapshot and attaches the grounding sources.
func MapWeather(resp entities.GenerateResponse, lang entities.Language) entities.WeatherSnapshot {
	obj := decode.DecodeObject(resp.Text)
	noData := entities.NoData(lang)
	current := obj.Object("current")

	var forecast []entities.DailyForecast
	for _, day := range obj.Objects("forecast") {
		forecast = append(forecast, entities.DailyForecast{
			Day:       day.StringOr("day", noData),
			Condition: day.StringOr("condition", noData),
			High:      day.StringOr("high", noData),
			Low:       day.StringOr("low", noData),
		})
	}

	return entities.WeatherSnapshot{
		Current: entities.CurrentWeather{
			Temp:      current.StringOr("temp", noData),
			Condition: current.StringOr("condition", noData),
			FeelsLike: current.StringOr("feelsLike", noData),
			Humidity:  current.StringOr("humidity", noData),
			WindSpeed: current.StringOr("windSpeed", noData),
			UVIndex:   current.StringOr("uvIndex", noData),
		},
		Forecast:          forecast,
		SowingSuitability: obj.StringOr("sowingSuitability", noData),
		AgriWarnings:      obj.Strings("agriWarnings"),
		Sources:           resp.Sources,
	}
}
