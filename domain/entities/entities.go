package entities

import "strings"

// Language is the reply language requested by the farmer.
type Language string

const (
	LanguageEnglish Language = "EN"
	LanguageHindi   Language = "HI"
)

// ParseLanguage accepts "EN"/"HI" in any case and defaults to English.
func ParseLanguage(s string) Language {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HI", "HINDI":
		return LanguageHindi
	default:
		return LanguageEnglish
	}
}

// Name is the language name used inside prompts.
func (l Language) Name() string {
	if l == LanguageHindi {
		return "Hindi"
	}
	return "English"
}

// NoData is the display value substituted for any field the model left out.
func NoData(lang Language) string {
	if lang == LanguageHindi {
		return "कोई डेटा उपलब्ध नहीं है"
	}
	return "No data available"
}

// SoilSample holds the soil test values entered for a field.
type SoilSample struct {
	Nitrogen   float64 `json:"nitrogen"`
	Phosphorus float64 `json:"phosphorus"`
	Potassium  float64 `json:"potassium"`
	PH         float64 `json:"ph"`
	District   string  `json:"district"`
}

// Recommendation is the crop advisory for a soil sample.
type Recommendation struct {
	SuggestedCrops     []string `json:"suggestedCrops"`
	FertilizerAdvice   string   `json:"fertilizerAdvice"`
	IrrigationSchedule string   `json:"irrigationSchedule"`
	Risks              []string `json:"risks"`
	ThoughtProcess     string   `json:"thoughtProcess,omitempty"`
}

// PestDiagnosis is the result of analyzing crop images.
type PestDiagnosis struct {
	PestName           string   `json:"pestName"`
	Confidence         *float64 `json:"confidence"`
	Remedy             string   `json:"remedy"`
	PreventiveMeasures []string `json:"preventiveMeasures"`
}

// ForecastWindows are the horizons every market forecast covers, in order.
var ForecastWindows = []string{"7 Days", "15 Days", "30 Days"}

// PriceWindow is a mandi price prediction in rupees per quintal.
type PriceWindow struct {
	Timeframe  string   `json:"timeframe"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Avg        *float64 `json:"avg"`
	Confidence *float64 `json:"confidence"`
}

// MarketForecast always carries one window per entry in ForecastWindows.
type MarketForecast struct {
	Predictions        []PriceWindow `json:"predictions"`
	InfluencingFactors []string      `json:"influencingFactors"`
	Summary            string        `json:"summary"`
}

// CurrentWeather values are kept as display strings since the model mixes units into them.
type CurrentWeather struct {
	Temp      string `json:"temp"`
	Condition string `json:"condition"`
	FeelsLike string `json:"feelsLike"`
	Humidity  string `json:"humidity"`
	WindSpeed string `json:"windSpeed"`
	UVIndex   string `json:"uvIndex"`
}

type DailyForecast struct {
	Day       string `json:"day"`
	Condition string `json:"condition"`
	High      string `json:"high"`
	Low       string `json:"low"`
}

// Source is a web page the model grounded its answer on.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// WeatherSnapshot is the current weather and short forecast for a district.
type WeatherSnapshot struct {
	Current           CurrentWeather  `json:"current"`
	Forecast          []DailyForecast `json:"forecast"`
	SowingSuitability string          `json:"sowingSuitability"`
	AgriWarnings      []string        `json:"agriWarnings"`
	Sources           []Source        `json:"sources,omitempty"`
}

// Role identifies the speaker of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one turn of a Kisan Sahayak conversation. Audio, when set,
// is base64 PCM at 24 kHz mono.
type ChatMessage struct {
	Role  Role   `json:"role"`
	Text  string `json:"text"`
	Audio string `json:"audio,omitempty"`
}

// GeneratedMedia is an image or video returned by the model.
type GeneratedMedia struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
	URI      string `json:"uri,omitempty"`
}
