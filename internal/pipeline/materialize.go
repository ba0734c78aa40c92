package pipeline

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/receiptdev/receipt-manager/internal/entity"
	"github.com/receiptdev/receipt-manager/internal/llm"
)

// materializeItem converts one parsed line item into its persisted form.
// Quantity defaults to 1 when absent; the parser's total is used only to
// derive a missing quantity or unit price, never stored directly. The stored
// total is always recomputed as round(quantity × unit_price, 2). Fractional
// quantities truncate toward zero beyond 3 decimal places, unit prices beyond
// 4. Negative upstream values clamp to zero.
func materializeItem(receiptID uuid.UUID, it llm.ParsedItem, catID, subID *int32, logger *slog.Logger) *entity.ReceiptItem {
	qty := fromUpstream(it.Quantity, logger, "quantity", it.Name)
	price := fromUpstream(it.UnitPrice, logger, "unit_price", it.Name)
	total := fromUpstream(it.Total, logger, "total", it.Name)

	switch {
	case qty == nil && price == nil:
		one := decimal.NewFromInt(1)
		qty = &one
		zero := decimal.Zero
		if total != nil {
			// With neither quantity nor unit price, the supplied total is the
			// best estimate of a single-unit price.
			price = total
		} else {
			price = &zero
		}
	case qty == nil:
		if total != nil && price.IsPositive() {
			q := total.Div(*price)
			qty = &q
		} else {
			one := decimal.NewFromInt(1)
			qty = &one
		}
	case price == nil:
		if total != nil && qty.IsPositive() {
			p := total.Div(*qty)
			price = &p
		} else {
			zero := decimal.Zero
			price = &zero
		}
	}

	item := &entity.ReceiptItem{
		ReceiptID:     receiptID,
		Name:          it.Name,
		Quantity:      qty.Truncate(3),
		UnitPrice:     price.Truncate(4),
		CategoryID:    catID,
		SubcategoryID: subID,
	}
	item.Total = item.ComputeTotal()
	return item
}

// fromUpstream converts an optional upstream float, clamping negatives to 0.
func fromUpstream(v *float64, logger *slog.Logger, field, itemName string) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	if d.IsNegative() {
		logger.Warn("pipeline.item.negative_value", "field", field, "item", itemName, "value", *v)
		d = decimal.Zero
	}
	return &d
}
