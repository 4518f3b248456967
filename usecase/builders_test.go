package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

func png(n int) []entities.Part {
	out := make([]entities.Part, n)
	for i := range out {
		out[i] = entities.InlinePart([]byte{byte(i + 1)}, "image/png")
	}
	return out
}

func TestBuildRecommendationRequest(t *testing.T) {
	env, err := BuildRecommendationRequest(entities.SoilSample{
		Nitrogen: 280, Phosphorus: 18, Potassium: 310, PH: 6.8, District: "sehore",
	}, entities.LanguageHindi)
	require.NoError(t, err)
	require.NoError(t, env.Validate())

	require.Equal(t, RecommendationModel, env.Model)
	require.True(t, env.Options.JSONOutput)
	require.Equal(t, int32(32768), env.Options.ThinkingBudget)
	prompt := env.Parts[0].Text
	require.Contains(t, prompt, "Deep Black Soil")
	require.Contains(t, prompt, "pH 6.8")
	require.Contains(t, prompt, "Hindi")
}

func TestValidateSoilSample(t *testing.T) {
	tests := []struct {
		name   string
		sample entities.SoilSample
		ok     bool
	}{
		{"valid", entities.SoilSample{Nitrogen: 1, PH: 7, District: "Dhar"}, true},
		{"unknown district is allowed", entities.SoilSample{PH: 7, District: "Betul"}, true},
		{"missing district", entities.SoilSample{PH: 7}, false},
		{"negative nitrogen", entities.SoilSample{Nitrogen: -1, PH: 7, District: "Dhar"}, false},
		{"ph above 14", entities.SoilSample{PH: 14.5, District: "Dhar"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSoilSample(tt.sample)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.True(t, IsInvalidInput(err))
			}
		})
	}
}

func TestDistrictProfileOmittedForUnknownDistrict(t *testing.T) {
	require.Empty(t, districtProfile("Betul"))
	require.Contains(t, districtProfile("Gwalior"), "Gwalior-Chambal")
}

func TestBuildPestRequestImageCount(t *testing.T) {
	_, err := BuildPestRequest(nil, entities.LanguageEnglish)
	require.ErrorIs(t, err, ErrNoImages)

	_, err = BuildPestRequest(png(4), entities.LanguageEnglish)
	require.ErrorIs(t, err, ErrTooManyImages)

	env, err := BuildPestRequest(png(3), entities.LanguageEnglish)
	require.NoError(t, err)
	require.Len(t, env.Parts, 4)
	for _, p := range env.Parts[:3] {
		require.True(t, p.IsInline())
	}
	require.False(t, env.Parts[3].IsInline())
	require.Equal(t, PestModel, env.Model)

	_, err = BuildPestRequest([]entities.Part{{Data: []byte{1}}}, entities.LanguageEnglish)
	require.ErrorIs(t, err, entities.ErrMissingMediaType)
}

func TestBuildChatRequestRejectsUnknownRoles(t *testing.T) {
	_, err := BuildChatRequest(ChatTurn{Message: "  "})
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = BuildChatRequest(ChatTurn{
		History: []entities.ChatMessage{{Role: "assistant", Text: "hi"}},
		Message: "hello",
	})
	require.ErrorIs(t, err, ErrUnknownChatRole)

	env, err := BuildChatRequest(ChatTurn{
		History:  []entities.ChatMessage{{Role: entities.RoleUser, Text: ""}},
		Message:  "hello",
		Language: entities.LanguageHindi,
	})
	require.NoError(t, err)
	require.Empty(t, env.History)
	require.Contains(t, env.SystemInstruction, "Madhya Pradesh")
	require.Contains(t, env.SystemInstruction, "Hindi")
}

func TestBuildMarketRequestAsksForThreeWindows(t *testing.T) {
	_, err := BuildMarketRequest(MarketQuery{District: "Indore"})
	require.ErrorIs(t, err, ErrMissingCrop)

	env, err := BuildMarketRequest(MarketQuery{Crop: "Soybean", District: "Indore"})
	require.NoError(t, err)
	require.True(t, env.Options.GroundWithSearch)
	prompt := env.Parts[0].Text
	for _, w := range entities.ForecastWindows {
		require.Contains(t, prompt, `"timeframe": "`+w+`"`)
	}
	require.Contains(t, prompt, "Major district mandis")
}

func TestMapMarketForecastAlwaysReturnsThreeWindowsInOrder(t *testing.T) {
	tests := []struct {
		name string
		text string
		avg  []*float64
	}{
		{
			name: "out of order labels",
			text: `{"predictions":[{"timeframe":"30 days","avg":4300},{"timeframe":"7 Days","avg":4100},{"timeframe":"15-day","avg":"4,200"}],"summary":"Stable"}`,
			avg:  []*float64{ptr(4100), ptr(4200), ptr(4300)},
		},
		{
			name: "missing window",
			text: `{"predictions":[{"timeframe":"7 Days","avg":4100}]}`,
			avg:  []*float64{ptr(4100), nil, nil},
		},
		{
			name: "unlabelled windows fall back to position",
			text: `{"predictions":[{"avg":1},{"avg":2}]}`,
			avg:  []*float64{ptr(1), ptr(2), nil},
		},
		{
			name: "garbage",
			text: "The market is closed today.",
			avg:  []*float64{nil, nil, nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapMarketForecast(entities.GenerateResponse{Text: tt.text}, entities.LanguageEnglish)
			require.Len(t, got.Predictions, 3)
			for i, p := range got.Predictions {
				require.Equal(t, entities.ForecastWindows[i], p.Timeframe)
				require.Equal(t, tt.avg[i], p.Avg)
			}
			require.NotEmpty(t, got.Summary)
			require.NotEmpty(t, got.InfluencingFactors)
		})
	}
}

func TestMapWeatherUsesGroundingSources(t *testing.T) {
	resp := entities.GenerateResponse{
		Text: "Based on search results:\n{\"current\":{\"temp\":\"31°C\",\"humidity\":64},\"forecast\":[{\"day\":\"Mon\",\"high\":\"33°C\"}],\"agriWarnings\":[\"Light rain expected\"]}",
		Sources: []entities.Source{{Title: "IMD Bhopal", URI: "https://mausam.imd.gov.in"}},
	}
	w := MapWeather(resp, entities.LanguageEnglish)
	require.Equal(t, "31°C", w.Current.Temp)
	require.Equal(t, "64", w.Current.Humidity)
	require.Equal(t, "No data available", w.Current.Condition)
	require.Len(t, w.Forecast, 1)
	require.Equal(t, "No data available", w.Forecast[0].Low)
	require.Equal(t, []string{"Light rain expected"}, w.AgriWarnings)
	require.Equal(t, resp.Sources, w.Sources)

	empty := MapWeather(entities.GenerateResponse{}, entities.LanguageHindi)
	require.Equal(t, "कोई डेटा उपलब्ध नहीं है", empty.Current.Temp)
	require.Equal(t, "कोई डेटा उपलब्ध नहीं है", empty.SowingSuitability)
}

func TestBuildWeatherRequestIsGroundedWithoutJSONMode(t *testing.T) {
	_, err := BuildWeatherRequest(" ", entities.LanguageEnglish)
	require.ErrorIs(t, err, ErrMissingDistrict)

	env, err := BuildWeatherRequest("Jabalpur", entities.LanguageEnglish)
	require.NoError(t, err)
	require.True(t, env.Options.GroundWithSearch)
	require.False(t, env.Options.JSONOutput)
}

func TestMapRecommendationAllMissing(t *testing.T) {
	rec := MapRecommendation(entities.GenerateResponse{Text: "not json"}, entities.LanguageEnglish)
	require.Equal(t, []string{"No data available"}, rec.SuggestedCrops)
	require.Equal(t, "No data available", rec.FertilizerAdvice)
	require.Empty(t, rec.ThoughtProcess)
}

func TestPercent(t *testing.T) {
	require.Nil(t, percent(nil))
	require.InDelta(t, 75, *percent(ptr(0.75)), 1e-9)
	require.InDelta(t, 90, *percent(ptr(90)), 1e-9)
	require.Nil(t, percent(ptr(140)))
}

func TestBuildImageRequests(t *testing.T) {
	env, err := BuildImageRequest(ImagePrompt{Prompt: "a healthy wheat field"})
	require.NoError(t, err)
	require.Equal(t, "1:1", env.Options.ImageAspectRatio)
	require.Equal(t, "1K", env.Options.ImageSize)

	_, err = BuildImageRequest(ImagePrompt{Prompt: "x", AspectRatio: "2:1"})
	require.ErrorIs(t, err, ErrBadAspectRatio)
	_, err = BuildImageRequest(ImagePrompt{})
	require.ErrorIs(t, err, ErrEmptyPrompt)

	edit, err := BuildImageEditRequest(entities.InlinePart([]byte{1}, "image/png"), "remove the weeds")
	require.NoError(t, err)
	require.Equal(t, ImageEditModel, edit.Model)
	require.True(t, edit.Parts[0].IsInline())

	_, err = BuildImageEditRequest(entities.Part{Data: []byte{1}}, "x")
	require.ErrorIs(t, err, entities.ErrMissingMediaType)
}

func TestBuildVideoRequest(t *testing.T) {
	req, err := BuildVideoRequest(VideoPrompt{Prompt: "monsoon sowing", AspectRatio: "9:16"})
	require.NoError(t, err)
	require.Equal(t, VideoModel, req.Model)
	require.Equal(t, "9:16", req.AspectRatio)

	_, err = BuildVideoRequest(VideoPrompt{Prompt: "x", AspectRatio: "1:1"})
	require.ErrorIs(t, err, ErrBadAspectRatio)

	_, err = BuildVideoRequest(VideoPrompt{Prompt: "x", Image: &entities.Part{Data: []byte{1}}})
	require.ErrorIs(t, err, entities.ErrMissingMediaType)
}

func TestMapGeneratedImageSkipsNonImages(t *testing.T) {
	got := MapGeneratedImage(entities.GenerateResponse{Inline: []entities.Part{
		entities.InlinePart([]byte{1}, "audio/pcm"),
		entities.InlinePart([]byte{2}, "image/jpeg"),
	}})
	require.NotNil(t, got)
	require.Equal(t, "image/jpeg", got.MIMEType)
	require.Nil(t, MapGeneratedImage(entities.GenerateResponse{}))
}

func TestJoinLinesDropsBlanks(t *testing.T) {
	require.Equal(t, "a\nb", joinLines("a", "  ", "b "))
	require.False(t, strings.Contains(joinLines(advisorInstruction), "\n\n"))
}

func ptr(v float64) *float64 { return &v }
