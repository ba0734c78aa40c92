package receipts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/receiptdev/receipt-manager/constants"
	"github.com/receiptdev/receipt-manager/internal/async"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

type stubReceipts struct {
	rows map[uuid.UUID]*entity.Receipt
}

func (s *stubReceipts) Create(_ context.Context, r *entity.Receipt) error {
	s.rows[r.ID] = r
	return nil
}

func (s *stubReceipts) GetByID(_ context.Context, id uuid.UUID) (*entity.Receipt, error) {
	r, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, common.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *stubReceipts) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*entity.Receipt, error) {
	var out []*entity.Receipt
	for _, r := range s.rows {
		if r.OwnerID == ownerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubReceipts) SaveOCRResult(context.Context, uuid.UUID, string, []byte) error { return nil }

func (s *stubReceipts) SaveParsedFields(context.Context, uuid.UUID, repository.ParsedFieldsUpdate) error {
	return nil
}

func (s *stubReceipts) MarkProcessed(context.Context, uuid.UUID) error { return nil }

func (s *stubReceipts) MarkFailed(context.Context, uuid.UUID, string) error { return nil }

func (s *stubReceipts) ResetForRetry(_ context.Context, id uuid.UUID) error {
	r := s.rows[id]
	if r.Status != constants.StatusFailed {
		return fmt.Errorf("receipt %s is not in failed status: %w", id, common.ErrInvalidInput)
	}
	r.Status = constants.StatusPending
	r.ErrorMessage = nil
	return nil
}

func (s *stubReceipts) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.rows, id)
	return nil
}

type stubItems struct {
	byRcpt map[uuid.UUID][]*entity.ReceiptItem
}

func (s *stubItems) ReplaceAll(_ context.Context, id uuid.UUID, items []*entity.ReceiptItem) error {
	s.byRcpt[id] = items
	return nil
}

func (s *stubItems) ListByReceipt(_ context.Context, id uuid.UUID) ([]*entity.ReceiptItem, error) {
	return s.byRcpt[id], nil
}

type recordingQueue struct {
	jobs []async.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

func newServiceEnv(t *testing.T, status constants.ReceiptStatus) (*Service, *stubReceipts, *recordingQueue, *entity.Receipt, string) {
	t.Helper()
	root := t.TempDir()
	rec := &entity.Receipt{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		OriginalFilename: "receipt.jpg",
		StoredPath:       filepath.Join("receipts", "receipt.jpg"),
		Status:           status,
	}
	path := filepath.Join(root, rec.StoredPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := &stubReceipts{rows: map[uuid.UUID]*entity.Receipt{rec.ID: rec}}
	items := &stubItems{byRcpt: make(map[uuid.UUID][]*entity.ReceiptItem)}
	queue := &recordingQueue{}
	svc := NewService(repo, items, queue, root, nil)
	return svc, repo, queue, rec, path
}

func TestGetChecksOwnership(t *testing.T) {
	svc, _, _, rec, _ := newServiceEnv(t, constants.StatusProcessed)

	got, _, err := svc.Get(context.Background(), rec.OwnerID, rec.ID)
	if err != nil {
		t.Fatalf("Get as owner: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("got receipt %s", got.ID)
	}

	_, _, err = svc.Get(context.Background(), uuid.New(), rec.ID)
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	svc, repo, queue, rec, _ := newServiceEnv(t, constants.StatusProcessed)

	err := svc.Retry(context.Background(), rec.OwnerID, rec.ID)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for non-failed receipt", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("nothing should be enqueued on rejected retry")
	}

	repo.rows[rec.ID].Status = constants.StatusFailed
	msg := "OCR processing failed: timeout"
	repo.rows[rec.ID].ErrorMessage = &msg

	if err := svc.Retry(context.Background(), rec.OwnerID, rec.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got := repo.rows[rec.ID]; got.Status != constants.StatusPending || got.ErrorMessage != nil {
		t.Fatalf("receipt after retry = %s / %v, want pending with cleared error", got.Status, got.ErrorMessage)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].ReceiptID != rec.ID {
		t.Fatalf("queue jobs = %+v", queue.jobs)
	}
}

func TestRetryChecksOwnership(t *testing.T) {
	svc, _, queue, rec, _ := newServiceEnv(t, constants.StatusFailed)

	err := svc.Retry(context.Background(), uuid.New(), rec.ID)
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("nothing should be enqueued for a foreign receipt")
	}
}

func TestDeleteRemovesRowAndFile(t *testing.T) {
	svc, repo, _, rec, path := newServiceEnv(t, constants.StatusProcessed)

	if err := svc.Delete(context.Background(), rec.OwnerID, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := repo.rows[rec.ID]; ok {
		t.Fatal("row still present after delete")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stored file still present: %v", err)
	}
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	svc, repo, _, rec, path := newServiceEnv(t, constants.StatusFailed)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(context.Background(), rec.OwnerID, rec.ID); err != nil {
		t.Fatalf("Delete with missing file: %v", err)
	}
	if _, ok := repo.rows[rec.ID]; ok {
		t.Fatal("row still present after delete")
	}
}
