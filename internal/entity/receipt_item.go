package entity

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptItem is one line item of a receipt. The full item set is replaced
// atomically on every successful parse; there is no incremental update.
type ReceiptItem struct {
	ID        int64     `json:"id"`
	ReceiptID uuid.UUID `json:"receipt_id"`

	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`   // >= 0, up to 3 decimal places
	UnitPrice decimal.Decimal `json:"unit_price"` // >= 0, up to 4 decimal places
	Total     decimal.Decimal `json:"total"`      // always round(quantity*unit_price, 2)

	CategoryID    *int32 `json:"category_id,omitempty"`
	SubcategoryID *int32 `json:"subcategory_id,omitempty"`
}

// ComputeTotal returns the stored total of record: round(quantity × unit_price, 2).
// The total supplied by the parser is never trusted verbatim.
func (i *ReceiptItem) ComputeTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice).Round(2)
}
