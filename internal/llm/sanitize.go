package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ExtractJSONObject pulls the JSON object out of a model reply. Models
// occasionally wrap the object in markdown fences or prepend prose even when
// told not to; the substring from the first '{' to the last '}' is taken.
func ExtractJSONObject(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response content")
	}
	return []byte(s[start : end+1]), nil
}

// numericKeys are coerced from string to number when the model ignores the
// dot-decimal instruction and quotes its numbers.
var numericKeys = map[string]struct{}{
	"quantity": {}, "unit_price": {}, "total": {}, "total_amount": {},
}

// NormalizeParsedJSON repairs tolerable deviations before schema validation:
// quoted numbers are coerced, empty strings in nullable fields become null,
// and items that are not objects are dropped.
func NormalizeParsedJSON(raw []byte, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode response content: %w", err)
	}

	var repaired []string
	coerce := func(obj map[string]any, key string) {
		v, ok := obj[key]
		if !ok {
			return
		}
		s, ok := v.(string)
		if !ok {
			return
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			obj[key] = nil
			repaired = append(repaired, key+"(empty)")
			return
		}
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
			obj[key] = f
			repaired = append(repaired, key+"(quoted)")
		}
	}

	for key := range numericKeys {
		coerce(m, key)
	}

	if rawItems, ok := m["items"].([]any); ok {
		items := make([]any, 0, len(rawItems))
		for _, it := range rawItems {
			obj, ok := it.(map[string]any)
			if !ok {
				repaired = append(repaired, "items(dropped non-object)")
				continue
			}
			for key := range numericKeys {
				coerce(obj, key)
			}
			items = append(items, obj)
		}
		m["items"] = items
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode normalized content: %w", err)
	}
	if len(repaired) > 0 {
		logger.Warn("llm.parse.normalized_response", "repaired", repaired)
	}
	return out, nil
}
