package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/receiptdev/receipt-manager/constants"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
)

// ParsedFieldsUpdate carries the receipt-level outputs of a successful parse
// stage. Nil fields are written as NULL; the model legitimately may not
// determine every one of them.
type ParsedFieldsUpdate struct {
	Vendor          *string
	Currency        *string
	TotalAmount     *decimal.Decimal
	ReceiptDate     *time.Time
	ReceiptTimezone *string
}

type ReceiptRepository interface {
	Create(ctx context.Context, r *entity.Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.Receipt, error)

	// SaveOCRResult is the durable commit point of the OCR stage; a later
	// stage failure does not roll it back.
	SaveOCRResult(ctx context.Context, id uuid.UUID, text string, raw []byte) error
	SaveParsedFields(ctx context.Context, id uuid.UUID, upd ParsedFieldsUpdate) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error

	// ResetForRetry moves a failed receipt back to pending, clears its error
	// and discards stale line items in one transaction. Returns
	// common.ErrInvalidInput when the receipt is not currently failed.
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type receiptRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewReceiptRepository(pool *pgxpool.Pool, logger *slog.Logger) ReceiptRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &receiptRepository{pool: pool, logger: logger}
}

const receiptColumns = `id, owner_id, original_filename, stored_path, mime, file_size,
	ocr_text, ocr_data, vendor, trim(currency), total_amount::text,
	receipt_date, receipt_timezone, status, error_message, created_at, updated_at`

func (r *receiptRepository) Create(ctx context.Context, rec *entity.Receipt) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO receipts (id, owner_id, original_filename, stored_path, mime, file_size, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.OwnerID, rec.OriginalFilename, rec.StoredPath, rec.MimeType, rec.FileSize,
		string(rec.Status))
	if err != nil {
		r.logger.Error("failed to create receipt", "receipt_id", rec.ID, "error", err)
		return common.WrapError(err, "create receipt")
	}
	return nil
}

func (r *receiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
	rec, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get receipt", "receipt_id", id, "error", err)
		return nil, err
	}
	return rec, nil
}

func (r *receiptRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.Receipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+receiptColumns+` FROM receipts
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		r.logger.Error("failed to list receipts", "owner_id", ownerID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *receiptRepository) SaveOCRResult(ctx context.Context, id uuid.UUID, text string, raw []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE receipts
		SET ocr_text = $2, ocr_data = $3, updated_at = now()
		WHERE id = $1`, id, text, raw)
	return common.WrapError(err, "save ocr result")
}

func (r *receiptRepository) SaveParsedFields(ctx context.Context, id uuid.UUID, upd ParsedFieldsUpdate) error {
	var total *string
	if upd.TotalAmount != nil {
		s := upd.TotalAmount.StringFixed(2)
		total = &s
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE receipts
		SET vendor = $2, currency = $3, total_amount = $4::numeric,
		    receipt_date = $5, receipt_timezone = $6, updated_at = now()
		WHERE id = $1`,
		id, upd.Vendor, upd.Currency, total, upd.ReceiptDate, upd.ReceiptTimezone)
	return common.WrapError(err, "save parsed fields")
}

func (r *receiptRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE receipts
		SET status = 'processed', error_message = NULL, updated_at = now()
		WHERE id = $1`, id)
	return common.WrapError(err, "mark processed")
}

func (r *receiptRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE receipts
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`, id, message)
	return common.WrapError(err, "mark failed")
}

func (r *receiptRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin retry reset")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE receipts
		SET status = 'pending', error_message = NULL, updated_at = now()
		WHERE id = $1 AND status = 'failed'`, id)
	if err != nil {
		return common.WrapError(err, "reset receipt")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipt %s is not in failed status: %w", id, common.ErrInvalidInput)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM receipt_items WHERE receipt_id = $1`, id); err != nil {
		return common.WrapError(err, "discard stale items")
	}
	return tx.Commit(ctx)
}

func (r *receiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM receipts WHERE id = $1`, id)
	if err != nil {
		return common.WrapError(err, "delete receipt")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipt %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func scanReceipt(row pgx.Row) (*entity.Receipt, error) {
	var (
		rec      entity.Receipt
		status   string
		totalStr *string
	)
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.OriginalFilename, &rec.StoredPath, &rec.MimeType, &rec.FileSize,
		&rec.OCRText, &rec.OCRData, &rec.Vendor, &rec.Currency, &totalStr,
		&rec.ReceiptDate, &rec.ReceiptTimezone, &status, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = constants.NormalizeStatus(status)
	if totalStr != nil {
		d, err := decimal.NewFromString(*totalStr)
		if err != nil {
			return nil, fmt.Errorf("decode total_amount %q: %w", *totalStr, err)
		}
		rec.TotalAmount = &d
	}
	return &rec, nil
}
