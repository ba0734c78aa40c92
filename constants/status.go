package constants

// ReceiptStatus is the canonical lifecycle status for rows in receipts.
type ReceiptStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending   ReceiptStatus = "pending"   // waiting for a pipeline run
	StatusProcessed ReceiptStatus = "processed" // both stages committed
	StatusFailed    ReceiptStatus = "failed"    // a stage failed; error_message set
)

// NormalizeStatus maps legacy values from earlier schema revisions
// ("uploaded", "processing") onto the canonical set.
func NormalizeStatus(s string) ReceiptStatus {
	switch ReceiptStatus(s) {
	case StatusProcessed, StatusFailed:
		return ReceiptStatus(s)
	default:
		// includes "pending", "uploaded", "processing" and anything unknown
		return StatusPending
	}
}
