package decode

import (
	"strconv"
	"strings"
)

// Object is a decoded JSON object. Every accessor treats the field as
// optional and reports absence instead of failing.
type Object map[string]any

// String returns a non-empty string field. Numbers and booleans are rendered
// as text since models are loose about quoting.
func (o Object) String(key string) (string, bool) {
	switch v := o[key].(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// StringOr returns the field or fallback.
func (o Object) StringOr(key, fallback string) string {
	if s, ok := o.String(key); ok {
		return s
	}
	return fallback
}

// Number returns a numeric field, accepting numeric strings such as "85" or "85%".
func (o Object) Number(key string) *float64 {
	switch v := o[key].(type) {
	case float64:
		return &v
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
		s = strings.ReplaceAll(s, ",", "")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

// Strings returns the non-empty string items of a list field. A bare string
// is treated as a one-item list.
func (o Object) Strings(key string) []string {
	switch v := o[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := (Object{"v": item}).String("v"); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	}
	return nil
}

// Object returns a nested object field.
func (o Object) Object(key string) Object {
	if m, ok := o[key].(map[string]any); ok {
		return Object(m)
	}
	return nil
}

// Objects returns the object items of a list field.
func (o Object) Objects(key string) []Object {
	list, ok := o[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Object, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Object(m))
		}
	}
	return out
}
