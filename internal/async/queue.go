package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one scheduled pipeline run for a receipt.
type Job struct {
	ReceiptID   uuid.UUID
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
