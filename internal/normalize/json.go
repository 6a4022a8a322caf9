package normalize

import (
	"encoding/json"
	"strings"

	"medkit-workers/internal/common/validation"
)

// Fallback produces the mapping used when model output cannot be parsed.
type Fallback func() map[string]interface{}

// CleanJSON strips markdown fences, an optional language tag and any prose
// around the outermost object.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// language tag: "json", "JSON", "javascript" ...
		if idx := strings.IndexFunc(s, func(r rune) bool { return r == '\n' || r == ' ' || r == '{' }); idx > 0 {
			tag := s[:idx]
			if isWord(tag) {
				s = s[idx:]
			}
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first >= 0 && last > first {
		s = s[first : last+1]
	}
	return s
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

// ExtractJSON parses the object embedded in raw. When nothing parseable is
// found it returns fallback() and false. fallback may be nil.
func ExtractJSON(raw string, fallback Fallback) (map[string]interface{}, bool) {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &out); err != nil || out == nil {
		return callFallback(fallback), false
	}
	return out, true
}

// ExtractJSONWithSchema is ExtractJSON that also rejects objects not matching schema.
func ExtractJSONWithSchema(raw string, schema *validation.Schema, fallback Fallback) (map[string]interface{}, bool) {
	out, ok := ExtractJSON(raw, fallback)
	if !ok {
		return out, false
	}
	if schema != nil && !schema.Validate(out).Valid {
		return callFallback(fallback), false
	}
	return out, true
}

func callFallback(fallback Fallback) map[string]interface{} {
	if fallback == nil {
		return map[string]interface{}{}
	}
	return fallback()
}

// KeywordFallback splits a search query into lower-cased tokens and uses them
// for both name and description matching.
func KeywordFallback(query string) Fallback {
	return func() map[string]interface{} {
		tokens := strings.Fields(strings.ToLower(query))
		if tokens == nil {
			tokens = []string{}
		}
		return map[string]interface{}{
			"name_keywords":        tokens,
			"description_keywords": append([]string(nil), tokens...),
		}
	}
}

// StringSlice reads key from m as a list of strings, accepting both decoded
// JSON arrays and native string slices. Non-string items are skipped.
func StringSlice(m map[string]interface{}, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// String reads key from m as a string.
func String(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
