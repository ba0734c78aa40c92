package llm

import "strings"

// BuildSystemPrompt fixes the output contract: the model acts as a receipt
// parser and returns strict JSON only.
func BuildSystemPrompt() string {
	return "You extract structured purchase data (vendor, currency, total, and line items " +
		"with per-item category and subcategory) from raw OCR text of receipts/invoices. " +
		"You return strict JSON only."
}

// BuildUserPrompt packages the OCR text, a locale hint, the known-taxonomy
// listing and the extraction rules into the user message.
func BuildUserPrompt(req ParseRequest) string {
	locale := strings.TrimSpace(req.LocaleHint)
	if locale == "" {
		locale = `Country: DE (EUR default), language may vary.`
	}

	var b strings.Builder
	b.WriteString("OCR text (verbatim):\n")
	b.WriteString(req.OCRText)
	b.WriteString("\n\nLocale hint: \"")
	b.WriteString(locale)
	b.WriteString("\"\n\nRules:\n")
	b.WriteString("- ITEM-LEVEL CATEGORIZATION: each item must carry its own `category` (required) and `subcategory` (optional but preferred).\n")
	b.WriteString("- Prefer the known categories listed below; if none fits, propose a precise new category and/or subcategory. Avoid generic buckets.\n")
	b.WriteString("- Extract: `vendor`, `currency` (ISO 4217), `total_amount`.\n")
	b.WriteString("- Extract `receipt_date` (YYYY-MM-DD) and `receipt_time` (HH:MM or HH:MM:SS) when visible.\n")
	b.WriteString("- Extract line items: `name`, `quantity` (default 1 if missing), `unit_price`, `total` (unit_price × quantity).\n")
	b.WriteString("- All numbers in plain dot-decimal notation, no thousands separators and no currency symbols. Convert localized formats, e.g. \"1.234,56\" → 1234.56 and \"15,00\" → 15.00.\n")
	b.WriteString("- If something is unknown, set `null`.\n")
	b.WriteString("\nKnown categories to bias:\n")
	if len(req.Taxonomy) == 0 {
		b.WriteString("- No existing categories found\n")
	}
	for _, entry := range req.Taxonomy {
		b.WriteString("- **")
		b.WriteString(entry.Name)
		b.WriteString("**: ")
		b.WriteString(strings.Join(entry.Subcategories, ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nReturn strict JSON only:\n")
	b.WriteString(`{
  "vendor": "REWE",
  "currency": "EUR",
  "total_amount": 23.45,
  "receipt_date": "2025-01-31",
  "receipt_time": "17:42",
  "items": [
    {"name": "Milk 1L", "quantity": 2, "unit_price": 1.19, "total": 2.38, "category": "Groceries", "subcategory": "Dairy"},
    {"name": "Butter 250g", "quantity": 1, "unit_price": 2.29, "total": 2.29, "category": "Groceries", "subcategory": "Dairy"}
  ],
  "notes": null
}`)
	return b.String()
}
