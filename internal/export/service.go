package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/receiptdev/receipt-manager/internal/repository"
)

// Service produces XLSX workbooks summarizing an owner's receipts.
type Service struct {
	receipts   repository.ReceiptRepository
	items      repository.ItemRepository
	categories repository.CategoryRepository
	logger     *slog.Logger
}

func NewService(
	receipts repository.ReceiptRepository,
	items repository.ItemRepository,
	categories repository.CategoryRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{receipts: receipts, items: items, categories: categories, logger: logger}
}

// ExportReceiptsXLSX returns a workbook with one Receipts sheet and one Items
// sheet covering every receipt of the owner.
func (s *Service) ExportReceiptsXLSX(ctx context.Context, ownerID uuid.UUID) ([]byte, error) {
	start := time.Now()

	recs, err := s.receipts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	catNames, err := s.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()

	const receiptsSheet = "Receipts"
	if err := renameDefaultSheet(f, receiptsSheet); err != nil {
		return nil, err
	}
	writeHeader(f, receiptsSheet, []string{
		"Date", "Vendor", "Currency", "Total", "Status", "File", "Error",
	})

	row := 2
	for _, r := range recs {
		write := cellWriter(f, receiptsSheet, row)
		if r.ReceiptDate != nil {
			write(1, r.ReceiptDate.Format("2006-01-02"))
		} else {
			write(1, "")
		}
		write(2, deref(r.Vendor))
		write(3, deref(r.Currency))
		if r.TotalAmount != nil {
			write(4, r.TotalAmount.StringFixed(2))
		} else {
			write(4, "")
		}
		write(5, string(r.Status))
		write(6, r.OriginalFilename)
		write(7, truncate(deref(r.ErrorMessage), 140))
		row++
	}

	_ = f.SetColWidth(receiptsSheet, "A", "A", 12)
	_ = f.SetColWidth(receiptsSheet, "B", "B", 28)
	_ = f.SetColWidth(receiptsSheet, "D", "D", 12)
	_ = f.SetColWidth(receiptsSheet, "F", "G", 40)

	const itemsSheet = "Items"
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}
	writeHeader(f, itemsSheet, []string{
		"Receipt Date", "Vendor", "Item", "Quantity", "Unit Price", "Total", "Category", "Subcategory",
	})

	itemRows := 0
	row = 2
	for _, r := range recs {
		items, err := s.items.ListByReceipt(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("query items for receipt %s: %w", r.ID, err)
		}
		for _, it := range items {
			write := cellWriter(f, itemsSheet, row)
			if r.ReceiptDate != nil {
				write(1, r.ReceiptDate.Format("2006-01-02"))
			} else {
				write(1, "")
			}
			write(2, deref(r.Vendor))
			write(3, it.Name)
			write(4, it.Quantity.String())
			write(5, it.UnitPrice.String())
			write(6, it.Total.StringFixed(2))
			write(7, categoryName(catNames, it.CategoryID))
			write(8, categoryName(catNames, it.SubcategoryID))
			row++
			itemRows++
		}
	}

	_ = f.SetColWidth(itemsSheet, "A", "A", 12)
	_ = f.SetColWidth(itemsSheet, "B", "C", 28)
	_ = f.SetColWidth(itemsSheet, "G", "H", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"owner_id", ownerID.String(),
		"receipts", len(recs),
		"items", itemRows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) categoryNames(ctx context.Context) (map[int32]string, error) {
	cats, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	names := make(map[int32]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}

func categoryName(names map[int32]string, id *int32) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

func renameDefaultSheet(f *excelize.File, name string) error {
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return err
	}
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func cellWriter(f *excelize.File, sheet string, row int) func(col int, v any) {
	return func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
