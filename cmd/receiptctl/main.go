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
	"github.com/receiptdev/receipt-manager/internal/llm/openai"
	"github.com/receiptdev/receipt-manager/internal/ocr"
	"github.com/receiptdev/receipt-manager/internal/pipeline"
	"github.com/receiptdev/receipt-manager/internal/receipts"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

const usage = `usage: receiptctl --owner <uuid> <command> [receipt-id]

commands:
  list              list the owner's receipts
  show <id>         print one receipt with its items
  retry <id>        reprocess a failed receipt
  delete <id>       remove a receipt, its items and its stored file
`

type inlineQueue struct {
	proc    *pipeline.Processor
	timeout time.Duration
}

func (q *inlineQueue) Enqueue(ctx context.Context, job async.Job) error {
	runCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.proc.Process(runCtx, job.ReceiptID)
}

func (q *inlineQueue) Shutdown(context.Context) {}

func main() {
	ownerStr := flag.String("owner", "", "owner UUID (required)")
	flag.Parse()
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	ownerID, err := uuid.Parse(*ownerStr)
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Fprint(os.Stderr, usage)
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

	receiptsRepo := repository.NewReceiptRepository(pool, logger)
	itemsRepo := repository.NewItemRepository(pool, logger)
	categoriesRepo := repository.NewCategoryRepository(pool, logger)

	proc := pipeline.NewProcessor(logger, pipeline.Config{
		StorageRoot: cfg.Storage.Root,
		Timezone:    cfg.Storage.Timezone,
	}, receiptsRepo, itemsRepo, categoriesRepo,
		ocr.NewClient(ocr.Config{
			BaseURL:  cfg.OCR.BaseURL,
			APIKey:   cfg.OCR.APIKey,
			APIToken: cfg.OCR.APIToken,
			Timeout:  cfg.OCR.Timeout,
		}, logger),
		openai.NewClient(openai.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, logger),
	)

	svc := receipts.NewService(receiptsRepo, itemsRepo,
		&inlineQueue{proc: proc, timeout: cfg.Worker.JobTimeout},
		cfg.Storage.Root, logger)

	switch cmd {
	case "list":
		err = runList(ctx, svc, ownerID)
	case "show":
		err = runShow(ctx, svc, ownerID, flag.Arg(1))
	case "retry":
		err = withID(flag.Arg(1), func(id uuid.UUID) error {
			return svc.Retry(ctx, ownerID, id)
		})
	case "delete":
		err = withID(flag.Arg(1), func(id uuid.UUID) error {
			return svc.Delete(ctx, ownerID, id)
		})
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func withID(arg string, fn func(uuid.UUID) error) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return fmt.Errorf("receipt id must be a UUID: %w", err)
	}
	return fn(id)
}

func runList(ctx context.Context, svc *receipts.Service, ownerID uuid.UUID) error {
	recs, err := svc.List(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, r := range recs {
		date := "----------"
		if r.ReceiptDate != nil {
			date = r.ReceiptDate.Format("2006-01-02")
		}
		total := ""
		if r.TotalAmount != nil {
			total = r.TotalAmount.StringFixed(2)
		}
		fmt.Printf("%s  %-9s  %s  %8s  %s\n", r.ID, r.Status, date, total, r.OriginalFilename)
	}
	return nil
}

func runShow(ctx context.Context, svc *receipts.Service, ownerID uuid.UUID, arg string) error {
	return withID(arg, func(id uuid.UUID) error {
		rcpt, items, err := svc.Get(ctx, ownerID, id)
		if err != nil {
			return err
		}
		fmt.Printf("receipt %s: %s\n", rcpt.ID, rcpt.Status)
		fmt.Printf("  file:   %s (%s, %d bytes)\n", rcpt.OriginalFilename, rcpt.MimeType, rcpt.FileSize)
		if rcpt.Vendor != nil {
			fmt.Printf("  vendor: %s\n", *rcpt.Vendor)
		}
		if rcpt.ReceiptDate != nil {
			tz := ""
			if rcpt.ReceiptTimezone != nil {
				tz = " " + *rcpt.ReceiptTimezone
			}
			fmt.Printf("  date:   %s%s\n", rcpt.ReceiptDate.Format(time.RFC3339), tz)
		}
		if rcpt.TotalAmount != nil {
			cur := ""
			if rcpt.Currency != nil {
				cur = " " + *rcpt.Currency
			}
			fmt.Printf("  total:  %s%s\n", rcpt.TotalAmount.StringFixed(2), cur)
		}
		if rcpt.ErrorMessage != nil {
			fmt.Printf("  error:  %s\n", *rcpt.ErrorMessage)
		}
		for _, it := range items {
			fmt.Printf("  - %s  x%s @ %s = %s\n", it.Name, it.Quantity.String(), it.UnitPrice.String(), it.Total.StringFixed(2))
		}
		return nil
	})
}
