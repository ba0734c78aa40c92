package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/receiptdev/receipt-manager/internal/async"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

// Service exposes owner-scoped operations over stored receipts. Every
// accessor verifies the caller owns the receipt before returning anything.
type Service struct {
	logger      *slog.Logger
	receipts    repository.ReceiptRepository
	items       repository.ItemRepository
	queue       async.Queue
	storageRoot string
}

func NewService(
	receipts repository.ReceiptRepository,
	items repository.ItemRepository,
	queue async.Queue,
	storageRoot string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:      logger,
		receipts:    receipts,
		items:       items,
		queue:       queue,
		storageRoot: storageRoot,
	}
}

// Get returns the receipt together with its line items.
func (s *Service) Get(ctx context.Context, ownerID, receiptID uuid.UUID) (*entity.Receipt, []*entity.ReceiptItem, error) {
	rcpt, err := s.owned(ctx, ownerID, receiptID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.items.ListByReceipt(ctx, receiptID)
	if err != nil {
		return nil, nil, err
	}
	return rcpt, items, nil
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*entity.Receipt, error) {
	return s.receipts.ListByOwner(ctx, ownerID)
}

// Retry resets a failed receipt back to pending and queues it for another
// processing run. Receipts in any other status are rejected.
func (s *Service) Retry(ctx context.Context, ownerID, receiptID uuid.UUID) error {
	if _, err := s.owned(ctx, ownerID, receiptID); err != nil {
		return err
	}
	if err := s.receipts.ResetForRetry(ctx, receiptID); err != nil {
		return err
	}
	s.logger.Info("receipt reset for retry", "receipt_id", receiptID)
	return s.queue.Enqueue(ctx, async.Job{ReceiptID: receiptID})
}

// Delete removes the receipt, its items, and the stored file. A missing file
// is logged but does not fail the delete.
func (s *Service) Delete(ctx context.Context, ownerID, receiptID uuid.UUID) error {
	rcpt, err := s.owned(ctx, ownerID, receiptID)
	if err != nil {
		return err
	}
	if err := s.receipts.Delete(ctx, receiptID); err != nil {
		return err
	}
	path := filepath.Join(s.storageRoot, rcpt.StoredPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove receipt file", "receipt_id", receiptID, "path", path, "error", err)
	}
	s.logger.Info("receipt deleted", "receipt_id", receiptID)
	return nil
}

func (s *Service) owned(ctx context.Context, ownerID, receiptID uuid.UUID) (*entity.Receipt, error) {
	rcpt, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if rcpt.OwnerID != ownerID {
		return nil, fmt.Errorf("receipt %s does not belong to owner %s: %w", receiptID, ownerID, common.ErrForbidden)
	}
	return rcpt, nil
}
