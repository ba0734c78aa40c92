package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/receiptdev/receipt-manager/internal/async"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/ingest"
	"github.com/receiptdev/receipt-manager/internal/llm/openai"
	"github.com/receiptdev/receipt-manager/internal/ocr"
	"github.com/receiptdev/receipt-manager/internal/pipeline"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

// syncQueue runs each job inline instead of dispatching to workers, so the
// command exits only after the receipt reached a terminal status.
type syncQueue struct {
	proc    *pipeline.Processor
	timeout time.Duration
}

func (q *syncQueue) Enqueue(ctx context.Context, job async.Job) error {
	runCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.proc.Process(runCtx, job.ReceiptID)
}

func (q *syncQueue) Shutdown(context.Context) {}

func main() {
	var (
		file    = flag.String("file", "", "receipt file to ingest and process (required unless --id)")
		idStr   = flag.String("id", "", "existing receipt UUID to process instead of a file")
		ownerID = flag.String("owner", "", "owner UUID (required with --file)")
	)
	flag.Parse()
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if (*file == "") == (*idStr == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --file or --id is required")
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Error("applying schema", "error", err)
		os.Exit(1)
	}

	receiptsRepo := repository.NewReceiptRepository(pool, logger)
	itemsRepo := repository.NewItemRepository(pool, logger)
	categoriesRepo := repository.NewCategoryRepository(pool, logger)

	extractor := ocr.NewClient(ocr.Config{
		BaseURL:  cfg.OCR.BaseURL,
		APIKey:   cfg.OCR.APIKey,
		APIToken: cfg.OCR.APIToken,
		Timeout:  cfg.OCR.Timeout,
	}, logger)
	parser := openai.NewClient(openai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	proc := pipeline.NewProcessor(logger, pipeline.Config{
		StorageRoot: cfg.Storage.Root,
		Timezone:    cfg.Storage.Timezone,
	}, receiptsRepo, itemsRepo, categoriesRepo, extractor, parser)
	queue := &syncQueue{proc: proc, timeout: cfg.Worker.JobTimeout}

	var receiptID uuid.UUID
	switch {
	case *idStr != "":
		receiptID, err = uuid.Parse(*idStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --id: %v\n", err)
			os.Exit(1)
		}
		err = queue.Enqueue(ctx, async.Job{ReceiptID: receiptID})
	default:
		owner, perr := uuid.Parse(*ownerID)
		if perr != nil {
			fmt.Fprintln(os.Stderr, "Error: --owner must be a UUID when using --file")
			os.Exit(1)
		}
		ingestor := ingest.NewIngestor(receiptsRepo, queue, cfg.Storage.Root, owner, logger)
		rcpt, ierr := ingestor.IngestFile(ctx, *file)
		if rcpt == nil {
			logger.Error("ingestion failed", "file", *file, "error", ierr)
			os.Exit(1)
		}
		// A processing error is already persisted on the receipt; fall
		// through and report the stored status.
		receiptID = rcpt.ID
		err = ierr
	}
	if err != nil {
		logger.Error("processing failed", "receipt_id", receiptID, "error", err)
	}

	final, err := receiptsRepo.GetByID(ctx, receiptID)
	if err != nil {
		logger.Error("loading receipt after processing", "receipt_id", receiptID, "error", err)
		os.Exit(1)
	}
	fmt.Printf("receipt %s: %s\n", final.ID, final.Status)
	if final.Vendor != nil {
		fmt.Printf("  vendor: %s\n", *final.Vendor)
	}
	if final.TotalAmount != nil {
		cur := ""
		if final.Currency != nil {
			cur = " " + *final.Currency
		}
		fmt.Printf("  total:  %s%s\n", final.TotalAmount.StringFixed(2), cur)
	}
	if final.ErrorMessage != nil {
		fmt.Printf("  error:  %s\n", *final.ErrorMessage)
	}
	if final.IsFailed() {
		os.Exit(1)
	}
}
