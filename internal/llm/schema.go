package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildParsedReceiptSchema returns the JSON-Schema the model's reply must
// satisfy. It checks basic shape only: field types and the items array.
// Content-level judgments (empty category names, missing numbers) are
// handled downstream, not rejected here.
func BuildParsedReceiptSchema() map[string]any {
	nullableString := map[string]any{"type": []string{"string", "null"}}
	nullableNumber := map[string]any{"type": []string{"number", "null"}}

	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"quantity":    nullableNumber,
			"unit_price":  nullableNumber,
			"total":       nullableNumber,
			"category":    nullableString,
			"subcategory": nullableString,
		},
		"required": []string{"name"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"vendor":       nullableString,
			"currency": map[string]any{
				"type":      []string{"string", "null"},
				"minLength": 3,
				"maxLength": 3,
			},
			"total_amount": nullableNumber,
			"receipt_date": map[string]any{
				"type":    []string{"string", "null"},
				"pattern": `^\d{4}-\d{2}-\d{2}$`,
			},
			"receipt_time": nullableString,
			"items": map[string]any{
				"type":  "array",
				"items": item,
			},
			"notes": nullableString,
		},
		"required": []string{"items"},
	}
}

// ValidateAgainstSchema validates data against schemaMap.
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
