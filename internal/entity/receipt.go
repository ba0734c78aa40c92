package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/receiptdev/receipt-manager/constants"
)

// Receipt represents one uploaded document for data transfer between layers.
// Extraction outputs stay nil until the corresponding pipeline stage commits.
type Receipt struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`

	OriginalFilename string `json:"original_filename"`
	StoredPath       string `json:"stored_path"`
	MimeType         string `json:"mime_type"`
	FileSize         int64  `json:"file_size"`

	OCRText *string `json:"ocr_text,omitempty"`
	OCRData []byte  `json:"ocr_data,omitempty"` // raw OCR response, kept for audit

	Vendor          *string          `json:"vendor,omitempty"`
	Currency        *string          `json:"currency,omitempty"` // ISO 4217
	TotalAmount     *decimal.Decimal `json:"total_amount,omitempty"`
	ReceiptDate     *time.Time       `json:"receipt_date,omitempty"`
	ReceiptTimezone *string          `json:"receipt_timezone,omitempty"` // IANA name

	Status       constants.ReceiptStatus `json:"status"`
	ErrorMessage *string                 `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFailed reports whether the receipt is in the failed state, the only state
// a user-triggered retry is accepted from.
func (r *Receipt) IsFailed() bool { return r.Status == constants.StatusFailed }

// IsProcessed reports whether both pipeline stages committed.
func (r *Receipt) IsProcessed() bool { return r.Status == constants.StatusProcessed }
