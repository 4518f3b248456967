package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

// MockModel answers every capability with canned data. It backs local runs
// without an API key (GEMINI_MOCK=true).
type MockModel struct{}

var (
	_ repositories.GenerativeModel = MockModel{}
	_ repositories.VideoGenerator  = MockModel{}
)

// 1x1 transparent PNG.
var mockImage, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

var mockReplies = map[entities.Capability]string{
	entities.CapabilityRecommendation: "Here is the plan:\n```json\n" +
		`{"suggestedCrops":["Soybean","Wheat","Gram"],"fertilizerAdvice":"Apply 20:60:20 NPK kg/ha at sowing.","irrigationSchedule":"Irrigate at crown root initiation and flowering.","risks":["Yellow mosaic in humid spells"]}` +
		"\n```",
	entities.CapabilityPestAnalysis: `{"pestName":"Fall armyworm","confidence":82,"remedy":"Spray Emamectin benzoate 5 SG at 0.4 g/l.","preventiveMeasures":["Install pheromone traps","Remove egg masses"]}`,
	entities.CapabilityMarketForecast: `Forecast below. {"predictions":[{"timeframe":"7 Days","min":4300,"max":4600,"avg":4450,"confidence":78},` +
		`{"timeframe":"15 Days","min":4250,"max":4700,"avg":4480,"confidence":66},{"timeframe":"30 Days","min":4100,"max":4800,"avg":4500,"confidence":52}],` +
		`"influencingFactors":["Arrivals at Indore mandi","MSP procurement"],"summary":"Prices steady with mild upside."}`,
	entities.CapabilityWeather: `{"current":{"temp":"31°C","condition":"Partly cloudy","feelsLike":"34°C","humidity":"62%","windSpeed":"12 km/h","uvIndex":"7"},` +
		`"forecast":[{"day":"Mon","condition":"Sunny","high":"33°C","low":"22°C"},{"day":"Tue","condition":"Light rain","high":"30°C","low":"21°C"}],` +
		`"sowingSuitability":"Good for soybean sowing after Tuesday's rain.","agriWarnings":["Avoid spraying before rain"]}`,
}

func (MockModel) Generate(ctx context.Context, envelope entities.Envelope) (entities.GenerateResponse, error) {
	if err := envelope.Validate(); err != nil {
		return entities.GenerateResponse{}, err
	}
	switch envelope.Capability {
	case entities.CapabilityImageGenerate, entities.CapabilityImageEdit:
		return entities.GenerateResponse{Inline: []entities.Part{entities.InlinePart(mockImage, "image/png")}}, nil
	case entities.CapabilitySpeech:
		// Half a second of silence at 24 kHz.
		return entities.GenerateResponse{Inline: []entities.Part{entities.InlinePart(make([]byte, 24000), "audio/pcm;rate=24000")}}, nil
	case entities.CapabilityChat:
		last := envelope.Parts[len(envelope.Parts)-1].Text
		return entities.GenerateResponse{Text: fmt.Sprintf("Thanks for asking about %q. Test your soil before sowing and follow the local KVK advisory.", last)}, nil
	}
	if reply, ok := mockReplies[envelope.Capability]; ok {
		resp := entities.GenerateResponse{Text: reply}
		if envelope.Options.GroundWithSearch {
			resp.Sources = []entities.Source{{Title: "IMD Bhopal", URI: "https://mausam.imd.gov.in/bhopal/"}}
		}
		return resp, nil
	}
	return entities.GenerateResponse{}, fmt.Errorf("mock model has no reply for capability %q", envelope.Capability)
}

func (MockModel) GenerateVideo(ctx context.Context, req entities.VideoRequest) (entities.GeneratedMedia, error) {
	if err := req.Validate(); err != nil {
		return entities.GeneratedMedia{}, err
	}
	return entities.GeneratedMedia{MIMEType: "video/mp4", Data: []byte("mock-video")}, nil
}
