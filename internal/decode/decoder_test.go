package decode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

var samples = []string{
	`{"suggestedCrops":["Soybean","Wheat"],"fertilizerAdvice":"Apply 40 kg/ha DAP","risks":[]}`,
	`{"pestName":"Fall armyworm","confidence":87.5,"preventiveMeasures":["Pheromone traps","Early sowing"]}`,
	`{"predictions":[{"timeframe":"7 Days","min":4200,"max":4600,"avg":4400,"confidence":72}],"summary":"स्थिर भाव"}`,
	`{"current":{"temp":"31°C","humidity":"64%"},"forecast":[{"day":"Mon","high":"33","low":"22"}],"nested":{"deep":{"x":null,"y":true}}}`,
	`[{"a":1},{"b":[1,2,3]}]`,
	`{}`,
}

func mustUnmarshal(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestDecodeRecoversJSONFromProse(t *testing.T) {
	wrappers := []struct {
		name   string
		before string
		after  string
	}{
		{name: "bare"},
		{name: "leading prose", before: "Sure! Here is the analysis you asked for: "},
		{name: "markdown fence", before: "```json\n", after: "\n```"},
		{name: "both sides", before: "Result follows.\n\n", after: "\n\nLet me know if you need anything else."},
		{name: "hindi prose", before: "यह रहा परिणाम: ", after: " धन्यवाद।"},
	}

	for _, sample := range samples {
		want := mustUnmarshal(t, sample)
		for _, w := range wrappers {
			t.Run(w.name, func(t *testing.T) {
				got := Decode(w.before + sample + w.after)
				require.Equal(t, want, got)
			})
		}
	}
}

func TestDecodeRawNewlineInsideNumericObject(t *testing.T) {
	got := Decode("{\"a\":1,\n\"b\":2}")
	require.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, got)
}

func TestDecodeStripsNewlineArtifacts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{
			name: "escaped newline between tokens",
			raw:  `{"a":1,\n"b":2}`,
			want: map[string]any{"a": float64(1), "b": float64(2)},
		},
		{
			name: "raw newline inside a string",
			raw:  "{\"summary\":\"line one\nline two\"}",
			want: map[string]any{"summary": "line oneline two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Decode(tt.raw))
		})
	}
}

func TestDecodeFallsBackToBraceSlice(t *testing.T) {
	// The greedy span starts at the stray '[' and cannot parse; the brace slice can.
	raw := `Note [see below] {"pestName":"Aphid","remedy":"Neem oil"} end`
	got := Decode(raw)
	require.Equal(t, map[string]any{"pestName": "Aphid", "remedy": "Neem oil"}, got)
}

func TestDecodeReturnsNilWhenNothingParses(t *testing.T) {
	for _, raw := range []string{"", "   ", "no json here", "{not: valid}", "[1, 2", "{\"a\": }"} {
		require.Nil(t, Decode(raw), raw)
		require.Nil(t, DecodeObject(raw), raw)
	}
}

func TestDecodeIsIdempotentOnCanonicalJSON(t *testing.T) {
	values := []any{
		map[string]any{"summary": "first line\nsecond line", "n": 3.5},
		map[string]any{"list": []any{"a", "b"}, "obj": map[string]any{"k": "v <b>"}},
		[]any{map[string]any{"x": 1.0}},
	}
	for _, v := range values {
		first := Decode(Canonical(v))
		require.Equal(t, v, first)
		require.Equal(t, first, Decode(Canonical(first)))
	}
}

func TestDecodeObjectAcceptsArrayOfObjects(t *testing.T) {
	obj := DecodeObject(`[{"day":"Mon"},{"day":"Tue"}]`)
	require.Equal(t, "Mon", obj.StringOr("day", ""))
}

func TestObjectAccessors(t *testing.T) {
	obj := DecodeObject(`{
		"name": "  Sehore ",
		"temp": 31,
		"confidence": "85%",
		"price": "4,250",
		"blank": "",
		"tags": ["a", "", 2, null],
		"single": "only",
		"current": {"condition": "Sunny"},
		"forecast": [{"day": "Mon"}, "junk", {"day": "Tue"}]
	}`)
	require.NotNil(t, obj)

	s, ok := obj.String("name")
	require.True(t, ok)
	require.Equal(t, "Sehore", s)

	s, ok = obj.String("temp")
	require.True(t, ok)
	require.Equal(t, "31", s)

	_, ok = obj.String("blank")
	require.False(t, ok)
	require.Equal(t, "fallback", obj.StringOr("missing", "fallback"))

	require.Equal(t, 85.0, *obj.Number("confidence"))
	require.Equal(t, 4250.0, *obj.Number("price"))
	require.Nil(t, obj.Number("name"))
	require.Nil(t, obj.Number("missing"))

	require.Equal(t, []string{"a", "2"}, obj.Strings("tags"))
	require.Equal(t, []string{"only"}, obj.Strings("single"))
	require.Nil(t, obj.Strings("missing"))

	require.Equal(t, "Sunny", obj.Object("current").StringOr("condition", ""))
	require.Nil(t, obj.Object("name"))
	require.Len(t, obj.Objects("forecast"), 2)

	var empty Object
	require.Equal(t, "x", empty.Object("a").StringOr("b", "x"))
}
