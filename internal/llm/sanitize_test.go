package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"vendor":"REWE"}`,
			want:    `{"vendor":"REWE"}`,
		},
		{
			name:    "markdown fenced",
			content: "```json\n{\"vendor\":\"REWE\"}\n```",
			want:    `{"vendor":"REWE"}`,
		},
		{
			name:    "plain fence",
			content: "```\n{\"vendor\":\"REWE\"}\n```",
			want:    `{"vendor":"REWE"}`,
		},
		{
			name:    "leading prose",
			content: "Here is the extracted data:\n{\"vendor\":\"REWE\"}",
			want:    `{"vendor":"REWE"}`,
		},
		{
			name:    "no object at all",
			content: "I could not read this receipt.",
			wantErr: true,
		},
		{
			name:    "empty content",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("got %s, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSONObject: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNormalizeParsedJSON(t *testing.T) {
	raw := []byte(`{
		"vendor": "REWE",
		"total_amount": "1,234.56",
		"items": [
			{"name": "Milch", "quantity": "2", "unit_price": "1.19", "total": ""},
			"not an object",
			{"name": "Brot", "quantity": 1, "unit_price": 2.49}
		]
	}`)

	out, err := NormalizeParsedJSON(raw, nil)
	if err != nil {
		t.Fatalf("NormalizeParsedJSON: %v", err)
	}

	var got ParsedReceipt
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal normalized: %v", err)
	}
	if got.TotalAmount == nil || *got.TotalAmount != 1234.56 {
		t.Errorf("total_amount = %v, want 1234.56", got.TotalAmount)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items = %d, want 2 (non-object dropped)", len(got.Items))
	}
	milch := got.Items[0]
	if milch.Quantity == nil || *milch.Quantity != 2 {
		t.Errorf("quantity = %v, want coerced 2", milch.Quantity)
	}
	if milch.UnitPrice == nil || *milch.UnitPrice != 1.19 {
		t.Errorf("unit_price = %v, want coerced 1.19", milch.UnitPrice)
	}
	if milch.Total != nil {
		t.Errorf("total = %v, want null from empty string", milch.Total)
	}
}

func TestNormalizeParsedJSONRejectsInvalid(t *testing.T) {
	if _, err := NormalizeParsedJSON([]byte(`[1,2,3]`), nil); err == nil {
		t.Fatal("want error for non-object JSON")
	}
	if _, err := NormalizeParsedJSON([]byte(`{broken`), nil); err == nil {
		t.Fatal("want error for malformed JSON")
	}
}
