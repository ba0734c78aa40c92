package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/export"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

func main() {
	var (
		ownerStr = flag.String("owner", "", "owner UUID (required)")
		out      = flag.String("out", "receipts.xlsx", "output XLSX file path")
	)
	flag.Parse()
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ownerID, err := uuid.Parse(*ownerStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: --owner must be a UUID")
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "Error: DB_URL env var is required")
		os.Exit(2)
	}

	ctx := context.Background()
	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := export.NewService(
		repository.NewReceiptRepository(pool, logger),
		repository.NewItemRepository(pool, logger),
		repository.NewCategoryRepository(pool, logger),
		logger,
	)

	data, err := svc.ExportReceiptsXLSX(ctx, ownerID)
	if err != nil {
		logger.Error("export failed", "owner_id", ownerID, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("writing workbook", "path", *out, "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}
