package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/receiptdev/receipt-manager/constants"
	"github.com/receiptdev/receipt-manager/internal/async"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

type capturingReceipts struct {
	created   []*entity.Receipt
	createErr error
}

func (c *capturingReceipts) Create(_ context.Context, r *entity.Receipt) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.created = append(c.created, r)
	return nil
}

func (c *capturingReceipts) GetByID(context.Context, uuid.UUID) (*entity.Receipt, error) {
	return nil, common.ErrNotFound
}

func (c *capturingReceipts) ListByOwner(context.Context, uuid.UUID) ([]*entity.Receipt, error) {
	return nil, nil
}

func (c *capturingReceipts) SaveOCRResult(context.Context, uuid.UUID, string, []byte) error {
	return nil
}

func (c *capturingReceipts) SaveParsedFields(context.Context, uuid.UUID, repository.ParsedFieldsUpdate) error {
	return nil
}

func (c *capturingReceipts) MarkProcessed(context.Context, uuid.UUID) error      { return nil }
func (c *capturingReceipts) MarkFailed(context.Context, uuid.UUID, string) error { return nil }
func (c *capturingReceipts) ResetForRetry(context.Context, uuid.UUID) error      { return nil }
func (c *capturingReceipts) Delete(context.Context, uuid.UUID) error             { return nil }

type capturingQueue struct {
	jobs []async.Job
}

func (q *capturingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *capturingQueue) Shutdown(context.Context) {}

func TestIngestFile(t *testing.T) {
	inbox := t.TempDir()
	storage := t.TempDir()
	src := filepath.Join(inbox, "rewe kassenbon.jpg")
	if err := os.WriteFile(src, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := &capturingReceipts{}
	queue := &capturingQueue{}
	owner := uuid.New()
	ing := NewIngestor(repo, queue, storage, owner, nil)

	rcpt, err := ing.IngestFile(context.Background(), src)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if rcpt.OwnerID != owner {
		t.Errorf("owner = %s", rcpt.OwnerID)
	}
	if rcpt.Status != constants.StatusPending {
		t.Errorf("status = %s, want pending", rcpt.Status)
	}
	if rcpt.OriginalFilename != "rewe kassenbon.jpg" {
		t.Errorf("original filename = %q", rcpt.OriginalFilename)
	}
	if rcpt.MimeType != "image/jpeg" {
		t.Errorf("mime = %q", rcpt.MimeType)
	}
	if rcpt.FileSize != int64(len("jpeg bytes")) {
		t.Errorf("size = %d", rcpt.FileSize)
	}
	if !strings.HasPrefix(rcpt.StoredPath, "receipts"+string(filepath.Separator)) ||
		!strings.HasSuffix(rcpt.StoredPath, rcpt.ID.String()+".jpg") {
		t.Errorf("stored path = %q", rcpt.StoredPath)
	}

	if _, err := os.Stat(filepath.Join(storage, rcpt.StoredPath)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("inbox copy still present: %v", err)
	}

	if len(repo.created) != 1 || repo.created[0].ID != rcpt.ID {
		t.Fatalf("created rows = %+v", repo.created)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].ReceiptID != rcpt.ID {
		t.Fatalf("queue jobs = %+v", queue.jobs)
	}
}

func TestIngestFileRejectsUnsupportedExtension(t *testing.T) {
	inbox := t.TempDir()
	src := filepath.Join(inbox, "notes.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	ing := NewIngestor(&capturingReceipts{}, &capturingQueue{}, t.TempDir(), uuid.New(), nil)
	_, err := ing.IngestFile(context.Background(), src)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, serr := os.Stat(src); serr != nil {
		t.Fatalf("rejected file should stay in the inbox: %v", serr)
	}
}

func TestIngestFileRestoresInboxOnCreateFailure(t *testing.T) {
	inbox := t.TempDir()
	storage := t.TempDir()
	src := filepath.Join(inbox, "receipt.jpg")
	if err := os.WriteFile(src, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := &capturingReceipts{createErr: errors.New("db down")}
	queue := &capturingQueue{}
	ing := NewIngestor(repo, queue, storage, uuid.New(), nil)

	if _, err := ing.IngestFile(context.Background(), src); !errors.Is(err, repo.createErr) {
		t.Fatalf("err = %v, want %v", err, repo.createErr)
	}

	if _, err := os.Stat(src); err != nil {
		t.Errorf("file should be back in the inbox: %v", err)
	}
	ferr := filepath.WalkDir(storage, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.IsDir() {
			t.Errorf("stored copy left behind: %s", path)
		}
		return nil
	})
	if ferr != nil {
		t.Fatal(ferr)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("queue jobs = %+v, want none", queue.jobs)
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a/b/receipt.jpg", true},
		{"receipt.JPEG", true},
		{"scan.pdf", true},
		{"photo.webp", true},
		{"notes.txt", false},
		{"archive.zip", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := allowed(tt.path); got != tt.want {
			t.Errorf("allowed(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
