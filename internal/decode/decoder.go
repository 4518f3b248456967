// Package decode recovers JSON from model output that may be wrapped in prose,
// markdown fences, or contain raw newlines inside string values.
package decode

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// jsonSpan matches from the first '{' or '[' to the last closing brace or bracket.
var jsonSpan = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

// newlineArtifacts removes escaped and raw newlines from a candidate.
var newlineArtifacts = strings.NewReplacer(`\n`, "", "\n", "")

// Extract returns the JSON text recovered from raw, or nil if nothing parses.
func Extract(raw string) []byte {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	if span := jsonSpan.FindString(raw); span != "" {
		if json.Valid([]byte(span)) {
			return []byte(span)
		}
		if cleaned := newlineArtifacts.Replace(span); json.Valid([]byte(cleaned)) {
			return []byte(cleaned)
		}
	} else if trimmed := strings.TrimSpace(raw); json.Valid([]byte(trimmed)) {
		return []byte(trimmed)
	}

	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first != -1 && last > first {
		if slice := raw[first : last+1]; json.Valid([]byte(slice)) {
			return []byte(slice)
		}
	}
	return nil
}

// Decode parses the JSON recovered from raw. It never fails: a nil result
// means no parseable structure was found.
func Decode(raw string) any {
	data := Extract(raw)
	if data == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}

// DecodeObject is Decode restricted to a top-level object. The first object
// of a top-level array is accepted as well.
func DecodeObject(raw string) Object {
	switch v := Decode(raw).(type) {
	case map[string]any:
		return Object(v)
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return Object(m)
			}
		}
	}
	return nil
}

// Canonical re-encodes a decoded value as compact JSON.
func Canonical(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
