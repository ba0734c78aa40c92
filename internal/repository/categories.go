package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
)

type CategoryRepository interface {
	// FindOrCreateRoot returns the id of the top-level category with the given
	// name, creating it on first sight. Safe under concurrent creation of the
	// same name: a lost insert race is recovered by re-fetching.
	FindOrCreateRoot(ctx context.Context, name string) (int32, error)
	// FindOrCreateChild does the same for a subcategory scoped to parentID.
	FindOrCreateChild(ctx context.Context, name string, parentID int32) (int32, error)
	// ListTree returns the top-level categories with their subcategory names,
	// ordered by name, in the shape the parse prompt's taxonomy hint expects.
	ListTree(ctx context.Context) ([]*entity.TaxonomyNode, error)
	ListCategories(ctx context.Context) ([]*entity.Category, error)
}

type categoryRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCategoryRepository(pool *pgxpool.Pool, logger *slog.Logger) CategoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &categoryRepository{pool: pool, logger: logger}
}

func (r *categoryRepository) FindOrCreateRoot(ctx context.Context, name string) (int32, error) {
	var id int32
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM categories WHERE name = $1 AND parent_id IS NULL`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, common.WrapError(err, "lookup category")
	}

	// Insert; ON CONFLICT DO NOTHING returns no row when a concurrent run
	// created the same name first, in which case the re-fetch must succeed.
	err = r.pool.QueryRow(ctx, `
		INSERT INTO categories (name, parent_id) VALUES ($1, NULL)
		ON CONFLICT DO NOTHING
		RETURNING id`, name).Scan(&id)
	if err == nil {
		r.logger.Info("created category", "name", name, "category_id", id)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, common.WrapError(err, "create category")
	}

	err = r.pool.QueryRow(ctx,
		`SELECT id FROM categories WHERE name = $1 AND parent_id IS NULL`, name).Scan(&id)
	if err != nil {
		return 0, common.WrapError(err, "refetch category after conflict")
	}
	return id, nil
}

func (r *categoryRepository) FindOrCreateChild(ctx context.Context, name string, parentID int32) (int32, error) {
	var id int32
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM categories WHERE name = $1 AND parent_id = $2`, name, parentID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, common.WrapError(err, "lookup subcategory")
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO categories (name, parent_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
		RETURNING id`, name, parentID).Scan(&id)
	if err == nil {
		r.logger.Info("created subcategory", "name", name, "parent_id", parentID, "category_id", id)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, common.WrapError(err, "create subcategory")
	}

	err = r.pool.QueryRow(ctx,
		`SELECT id FROM categories WHERE name = $1 AND parent_id = $2`, name, parentID).Scan(&id)
	if err != nil {
		return 0, common.WrapError(err, "refetch subcategory after conflict")
	}
	return id, nil
}

func (r *categoryRepository) ListTree(ctx context.Context) ([]*entity.TaxonomyNode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.name, c.name
		FROM categories p
		LEFT JOIN categories c ON c.parent_id = p.id
		WHERE p.parent_id IS NULL
		ORDER BY p.name, c.name`)
	if err != nil {
		return nil, common.WrapError(err, "list taxonomy")
	}
	defer rows.Close()

	var (
		out  []*entity.TaxonomyNode
		last *entity.TaxonomyNode
	)
	for rows.Next() {
		var parent string
		var child *string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		if last == nil || last.Name != parent {
			last = &entity.TaxonomyNode{Name: parent}
			out = append(out, last)
		}
		if child != nil {
			last.Subcategories = append(last.Subcategories, *child)
		}
	}
	return out, rows.Err()
}

func (r *categoryRepository) ListCategories(ctx context.Context) ([]*entity.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, parent_id FROM categories ORDER BY parent_id NULLS FIRST, name`)
	if err != nil {
		return nil, common.WrapError(err, "list categories")
	}
	defer rows.Close()

	var out []*entity.Category
	for rows.Next() {
		var c entity.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
