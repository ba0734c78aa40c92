package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/receiptdev/receipt-manager/internal/entity"
	"github.com/receiptdev/receipt-manager/internal/llm"
	"github.com/receiptdev/receipt-manager/internal/ocr"
	"github.com/receiptdev/receipt-manager/internal/repository"
	"github.com/receiptdev/receipt-manager/internal/taxonomy"
)

// Config holds pipeline behavior settings.
type Config struct {
	StorageRoot string
	Timezone    string // IANA zone attached to parsed receipt dates
	LocaleHint  string // forwarded to the parsing client
}

// Processor runs the extraction pipeline for one receipt: OCR, LLM parse,
// taxonomy resolution and item materialization, receipt field update. It owns
// the receipt's status transitions; every stage failure is persisted onto the
// receipt before the error is returned to the scheduler, so a run always
// leaves the receipt in a terminal, inspectable state.
type Processor struct {
	logger     *slog.Logger
	cfg        Config
	receipts   repository.ReceiptRepository
	items      repository.ItemRepository
	categories repository.CategoryRepository
	extractor  ocr.TextExtractor
	parser     llm.ReceiptParser
	resolver   *taxonomy.Resolver
	location   *time.Location
}

func NewProcessor(
	logger *slog.Logger,
	cfg Config,
	receipts repository.ReceiptRepository,
	items repository.ItemRepository,
	categories repository.CategoryRepository,
	extractor ocr.TextExtractor,
	parser llm.ReceiptParser,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid pipeline timezone, falling back to UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
		cfg.Timezone = "UTC"
	}
	return &Processor{
		logger:     logger,
		cfg:        cfg,
		receipts:   receipts,
		items:      items,
		categories: categories,
		extractor:  extractor,
		parser:     parser,
		resolver:   taxonomy.NewResolver(categories, logger),
		location:   loc,
	}
}

// Process runs the full pipeline for receiptID, starting from pending. It is
// safe to re-run: the OCR stage always restarts from scratch and the item set
// is replaced, not appended. The returned error is the stage error, re-raised
// so the scheduler's retry policy can act on it.
func (p *Processor) Process(ctx context.Context, receiptID uuid.UUID) (err error) {
	rec, err := p.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return fmt.Errorf("load receipt: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error during processing: %v", r)
			p.logger.Error("pipeline.panic", "receipt_id", receiptID, "panic", r)
			p.fail(ctx, receiptID, err.Error())
		}
	}()

	p.logger.Info("pipeline.start", "receipt_id", receiptID, "mime", rec.MimeType)
	start := time.Now()

	text, err := p.runOCRStage(ctx, rec)
	if err != nil {
		return err
	}
	if err := p.runParseStage(ctx, rec, text); err != nil {
		return err
	}
	if err := p.receipts.MarkProcessed(ctx, receiptID); err != nil {
		p.fail(ctx, receiptID, err.Error())
		return err
	}

	p.logger.Info("pipeline.ok", "receipt_id", receiptID, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// runOCRStage checks the stored file, calls the extraction client and commits
// the raw text. This commit is durable; a later stage failure does not roll
// it back.
func (p *Processor) runOCRStage(ctx context.Context, rec *entity.Receipt) (string, error) {
	path := filepath.Join(p.cfg.StorageRoot, rec.StoredPath)
	if _, err := os.Stat(path); err != nil {
		msg := "Receipt file not found: " + path
		p.fail(ctx, rec.ID, msg)
		return "", errors.New(msg)
	}

	res, err := p.extractor.Extract(ctx, path, rec.MimeType)
	if err != nil {
		msg := "OCR processing failed: " + err.Error()
		p.fail(ctx, rec.ID, msg)
		return "", errors.New(msg)
	}

	if err := p.receipts.SaveOCRResult(ctx, rec.ID, res.Text, res.Raw); err != nil {
		p.fail(ctx, rec.ID, err.Error())
		return "", err
	}

	p.logger.Info("pipeline.ocr.ok",
		"receipt_id", rec.ID,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"has_confidence", res.Confidence != nil,
	)
	return res.Text, nil
}

// runParseStage calls the parsing client with the current taxonomy snapshot,
// resolves categories, replaces the item set and updates the receipt fields.
func (p *Processor) runParseStage(ctx context.Context, rec *entity.Receipt, text string) error {
	if strings.TrimSpace(text) == "" {
		msg := "No OCR text available for LLM parsing"
		p.fail(ctx, rec.ID, msg)
		return errors.New(msg)
	}

	tree, err := p.categories.ListTree(ctx)
	if err != nil {
		p.fail(ctx, rec.ID, err.Error())
		return err
	}
	taxonomyHint := make([]llm.TaxonomyEntry, len(tree))
	for i, node := range tree {
		taxonomyHint[i] = llm.TaxonomyEntry{Name: node.Name, Subcategories: node.Subcategories}
	}

	parsed, _, err := p.parser.Parse(ctx, llm.ParseRequest{
		OCRText:    text,
		LocaleHint: p.cfg.LocaleHint,
		Taxonomy:   taxonomyHint,
	})
	if err != nil {
		msg := "LLM processing failed: " + err.Error()
		p.fail(ctx, rec.ID, msg)
		return errors.New(msg)
	}

	session := p.resolver.NewSession()
	items := make([]*entity.ReceiptItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		catID, subID, err := session.Resolve(ctx, it.Category, it.Subcategory)
		if err != nil {
			p.fail(ctx, rec.ID, err.Error())
			return err
		}
		items = append(items, materializeItem(rec.ID, it, catID, subID, p.logger))
	}
	if err := p.items.ReplaceAll(ctx, rec.ID, items); err != nil {
		p.fail(ctx, rec.ID, err.Error())
		return err
	}

	upd := repository.ParsedFieldsUpdate{
		Vendor:   parsed.Vendor,
		Currency: normalizeCurrency(parsed.Currency),
	}
	if parsed.TotalAmount != nil {
		total := decimal.NewFromFloat(*parsed.TotalAmount).Round(2)
		upd.TotalAmount = &total
	}
	if dt := CombineDateTime(parsed.ReceiptDate, parsed.ReceiptTime, p.location, p.logger); dt != nil {
		upd.ReceiptDate = dt
		tz := p.cfg.Timezone
		upd.ReceiptTimezone = &tz
	}
	if err := p.receipts.SaveParsedFields(ctx, rec.ID, upd); err != nil {
		p.fail(ctx, rec.ID, err.Error())
		return err
	}

	p.logger.Info("pipeline.parse.ok",
		"receipt_id", rec.ID,
		"vendor", upd.Vendor,
		"items", len(items),
	)
	return nil
}

// fail persists the terminal failed state; the caller still returns the
// original error so the scheduler sees the failure too.
func (p *Processor) fail(ctx context.Context, receiptID uuid.UUID, message string) {
	if err := p.receipts.MarkFailed(ctx, receiptID, message); err != nil {
		p.logger.Error("pipeline.fail.persist_error", "receipt_id", receiptID, "error", err)
	}
}

func normalizeCurrency(c *string) *string {
	if c == nil {
		return nil
	}
	s := strings.ToUpper(strings.TrimSpace(*c))
	if len(s) != 3 {
		return nil
	}
	return &s
}
