package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
)

type ItemRepository interface {
	// ReplaceAll deletes the receipt's existing line items and inserts the new
	// set in one transaction. The pipeline never appends incrementally.
	ReplaceAll(ctx context.Context, receiptID uuid.UUID, items []*entity.ReceiptItem) error
	ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*entity.ReceiptItem, error)
}

type itemRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewItemRepository(pool *pgxpool.Pool, logger *slog.Logger) ItemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &itemRepository{pool: pool, logger: logger}
}

func (r *itemRepository) ReplaceAll(ctx context.Context, receiptID uuid.UUID, items []*entity.ReceiptItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin item replace")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM receipt_items WHERE receipt_id = $1`, receiptID); err != nil {
		return common.WrapError(err, "delete existing items")
	}
	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO receipt_items
				(receipt_id, name, quantity, unit_price, total, category_id, subcategory_id)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7)`,
			receiptID, it.Name,
			it.Quantity.String(), it.UnitPrice.String(), it.Total.StringFixed(2),
			it.CategoryID, it.SubcategoryID)
		if err != nil {
			return common.WrapError(err, "insert item")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit item replace")
	}
	r.logger.Debug("replaced receipt items", "receipt_id", receiptID, "count", len(items))
	return nil
}

func (r *itemRepository) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*entity.ReceiptItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, receipt_id, name, quantity::text, unit_price::text, total::text,
		       category_id, subcategory_id
		FROM receipt_items
		WHERE receipt_id = $1
		ORDER BY id`, receiptID)
	if err != nil {
		return nil, common.WrapError(err, "list items")
	}
	defer rows.Close()

	var out []*entity.ReceiptItem
	for rows.Next() {
		var (
			it              entity.ReceiptItem
			qty, price, tot string
		)
		if err := rows.Scan(&it.ID, &it.ReceiptID, &it.Name, &qty, &price, &tot,
			&it.CategoryID, &it.SubcategoryID); err != nil {
			return nil, err
		}
		if it.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("decode quantity %q: %w", qty, err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("decode unit_price %q: %w", price, err)
		}
		if it.Total, err = decimal.NewFromString(tot); err != nil {
			return nil, fmt.Errorf("decode total %q: %w", tot, err)
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}
