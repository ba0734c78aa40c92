package ocr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// pageSeparator joins per-page or per-file text fragments into one document.
const pageSeparator = "\n\f\n"

// normalizeResponse tolerates the two response shapes the service emits: a
// single top-level "text" field (images) and an array of per-page/per-file
// fragments under "files" or "pages" (documents). Confidence is optional in
// both shapes and averaged when reported per fragment.
func normalizeResponse(raw []byte) (ExtractionResult, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ExtractionResult{}, fmt.Errorf("decode response: %w", err)
	}

	if text, ok := m["text"].(string); ok {
		res := ExtractionResult{Text: text, Pages: 1, Raw: raw}
		if c, ok := toFloat(m["confidence"]); ok {
			res.Confidence = &c
		}
		return res, nil
	}

	for _, key := range []string{"files", "pages"} {
		frags, ok := m[key].([]any)
		if !ok {
			continue
		}
		var (
			parts     []string
			confSum   float64
			confCount int
		)
		for _, frag := range frags {
			switch t := frag.(type) {
			case string:
				parts = append(parts, t)
			case map[string]any:
				text, ok := t["text"].(string)
				if !ok {
					return ExtractionResult{}, fmt.Errorf("%s entry missing text field", key)
				}
				parts = append(parts, text)
				if c, ok := toFloat(t["confidence"]); ok {
					confSum += c
					confCount++
				}
			default:
				return ExtractionResult{}, fmt.Errorf("unexpected %s entry type %T", key, frag)
			}
		}
		res := ExtractionResult{
			Text:  strings.Join(parts, pageSeparator),
			Pages: len(parts),
			Raw:   raw,
		}
		if confCount > 0 {
			avg := confSum / float64(confCount)
			res.Confidence = &avg
		} else if c, ok := toFloat(m["confidence"]); ok {
			res.Confidence = &c
		}
		return res, nil
	}

	return ExtractionResult{}, fmt.Errorf("response carries neither text nor files/pages")
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
