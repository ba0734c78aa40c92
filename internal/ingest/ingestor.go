package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/receiptdev/receipt-manager/constants"
	"github.com/receiptdev/receipt-manager/internal/async"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

// Ingestor moves dropped files out of the inbox into managed storage, creates
// a pending receipt row for each and queues it for processing.
type Ingestor struct {
	logger      *slog.Logger
	receipts    repository.ReceiptRepository
	queue       async.Queue
	storageRoot string
	ownerID     uuid.UUID
}

func NewIngestor(
	receipts repository.ReceiptRepository,
	queue async.Queue,
	storageRoot string,
	ownerID uuid.UUID,
	logger *slog.Logger,
) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		logger:      logger,
		receipts:    receipts,
		queue:       queue,
		storageRoot: storageRoot,
		ownerID:     ownerID,
	}
}

// IngestFile takes ownership of the file at path. On success the file lives
// under <storageRoot>/receipts/<year>/<month>/<uuid>.<ext> and a pending
// receipt is queued. The inbox copy is gone either way only on success.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (*entity.Receipt, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	mime := constants.MIMEForExt(ext)
	if mime == "" {
		return nil, fmt.Errorf("unsupported file extension %q: %w", ext, common.ErrInvalidInput)
	}

	info, err := os.Stat(abs)
	if err != nil {
		i.logger.Error("failed to stat inbox file", "path", abs, "error", err)
		return nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	relPath := filepath.Join("receipts",
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()),
		id.String()+"."+ext)
	dst := filepath.Join(i.storageRoot, relPath)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		i.logger.Error("failed to create storage directory", "dir", filepath.Dir(dst), "error", err)
		return nil, err
	}
	if err := moveFile(abs, dst); err != nil {
		i.logger.Error("failed to move file into storage", "src", abs, "dst", dst, "error", err)
		return nil, err
	}

	rcpt := &entity.Receipt{
		ID:               id,
		OwnerID:          i.ownerID,
		OriginalFilename: filepath.Base(abs),
		StoredPath:       relPath,
		MimeType:         mime,
		FileSize:         info.Size(),
		Status:           constants.StatusPending,
	}
	if err := i.receipts.Create(ctx, rcpt); err != nil {
		// Put the file back so the inbox stays the source of truth when no
		// row references the stored copy.
		if mvErr := moveFile(dst, abs); mvErr != nil {
			i.logger.Error("failed to return file to inbox after create failure",
				"src", dst, "dst", abs, "error", mvErr)
		}
		return nil, err
	}

	i.logger.Info("ingested receipt file",
		"receipt_id", id, "filename", rcpt.OriginalFilename, "stored_path", relPath, "size", info.Size())

	if err := i.queue.Enqueue(ctx, async.Job{ReceiptID: id, SubmittedAt: now}); err != nil {
		return rcpt, err
	}
	return rcpt, nil
}

// Run consumes watcher events until the channel closes or ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-events:
			if !ok {
				return
			}
			if _, err := i.IngestFile(ctx, path); err != nil {
				i.logger.Error("ingestion failed", "path", path, "error", err)
			}
		}
	}
}

// moveFile prefers rename and falls back to copy+remove when the inbox and
// storage live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
