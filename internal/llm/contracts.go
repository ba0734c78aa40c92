package llm

import (
	"context"
	"fmt"
)

// ParsedItem is one line item as returned by the model. Numeric fields may be
// absent; the materialize stage derives what it can and recomputes totals.
type ParsedItem struct {
	Name        string   `json:"name"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Total       *float64 `json:"total,omitempty"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
}

// ParsedReceipt is the normalized shape we want from the model.
type ParsedReceipt struct {
	Vendor      *string      `json:"vendor"`
	Currency    *string      `json:"currency"` // ISO 4217
	TotalAmount *float64     `json:"total_amount"`
	ReceiptDate *string      `json:"receipt_date,omitempty"` // YYYY-MM-DD
	ReceiptTime *string      `json:"receipt_time,omitempty"` // HH:MM[:SS]
	Items       []ParsedItem `json:"items"`
	Notes       *string      `json:"notes,omitempty"`
}

// TaxonomyEntry is one known top-level category with its subcategory names,
// sent with the prompt to bias classification toward reuse over invention.
type TaxonomyEntry struct {
	Name          string
	Subcategories []string
}

// ParseRequest carries the OCR text and the current taxonomy snapshot.
type ParseRequest struct {
	OCRText    string
	LocaleHint string
	Taxonomy   []TaxonomyEntry
}

// ReceiptParser is the interface the pipeline depends on. The raw response is
// returned alongside the parsed structure for audit.
type ReceiptParser interface {
	Parse(ctx context.Context, req ParseRequest) (ParsedReceipt, []byte, error)
}

// ParseError is the single failure class the parsing client reports: remote
// transport/status failures, invalid JSON and shape violations all collapse
// into it.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return e.Cause }
