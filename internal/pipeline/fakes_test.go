package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/receiptdev/receipt-manager/constants"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/entity"
	"github.com/receiptdev/receipt-manager/internal/llm"
	"github.com/receiptdev/receipt-manager/internal/ocr"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

type fakeReceipts struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*entity.Receipt
	parsed   map[uuid.UUID]repository.ParsedFieldsUpdate
	failures int
}

func newFakeReceipts(recs ...*entity.Receipt) *fakeReceipts {
	f := &fakeReceipts{
		rows:   make(map[uuid.UUID]*entity.Receipt),
		parsed: make(map[uuid.UUID]repository.ParsedFieldsUpdate),
	}
	for _, r := range recs {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeReceipts) Create(_ context.Context, r *entity.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.rows[r.ID] = r
	return nil
}

func (f *fakeReceipts) GetByID(_ context.Context, id uuid.UUID) (*entity.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, common.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReceipts) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*entity.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Receipt
	for _, r := range f.rows {
		if r.OwnerID == ownerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeReceipts) SaveOCRResult(_ context.Context, id uuid.UUID, text string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	r.OCRText = &text
	r.OCRData = raw
	return nil
}

func (f *fakeReceipts) SaveParsedFields(_ context.Context, id uuid.UUID, upd repository.ParsedFieldsUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parsed[id] = upd
	r := f.rows[id]
	r.Vendor = upd.Vendor
	r.Currency = upd.Currency
	r.TotalAmount = upd.TotalAmount
	r.ReceiptDate = upd.ReceiptDate
	r.ReceiptTimezone = upd.ReceiptTimezone
	return nil
}

func (f *fakeReceipts) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Status = constants.StatusProcessed
	f.rows[id].ErrorMessage = nil
	return nil
}

func (f *fakeReceipts) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	f.rows[id].Status = constants.StatusFailed
	f.rows[id].ErrorMessage = &message
	return nil
}

func (f *fakeReceipts) ResetForRetry(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	if r.Status != constants.StatusFailed {
		return fmt.Errorf("receipt %s is not in failed status: %w", id, common.ErrInvalidInput)
	}
	r.Status = constants.StatusPending
	r.ErrorMessage = nil
	return nil
}

func (f *fakeReceipts) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

type fakeItems struct {
	mu       sync.Mutex
	byRcpt   map[uuid.UUID][]*entity.ReceiptItem
	replaces int
}

func newFakeItems() *fakeItems {
	return &fakeItems{byRcpt: make(map[uuid.UUID][]*entity.ReceiptItem)}
}

func (f *fakeItems) ReplaceAll(_ context.Context, receiptID uuid.UUID, items []*entity.ReceiptItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	f.byRcpt[receiptID] = items
	return nil
}

func (f *fakeItems) ListByReceipt(_ context.Context, receiptID uuid.UUID) ([]*entity.ReceiptItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byRcpt[receiptID], nil
}

type fakeCategories struct {
	mu     sync.Mutex
	nextID int32
	roots  map[string]int32
	byID   map[int32]*entity.Category
}

func newFakeCategories() *fakeCategories {
	return &fakeCategories{
		roots: make(map[string]int32),
		byID:  make(map[int32]*entity.Category),
	}
}

func (f *fakeCategories) FindOrCreateRoot(_ context.Context, name string) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.roots[name]; ok {
		return id, nil
	}
	f.nextID++
	id := f.nextID
	f.roots[name] = id
	f.byID[id] = &entity.Category{ID: id, Name: name}
	return id, nil
}

func (f *fakeCategories) FindOrCreateChild(_ context.Context, name string, parentID int32) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.Name == name && c.ParentID != nil && *c.ParentID == parentID {
			return c.ID, nil
		}
	}
	f.nextID++
	id := f.nextID
	pid := parentID
	f.byID[id] = &entity.Category{ID: id, Name: name, ParentID: &pid}
	return id, nil
}

func (f *fakeCategories) ListTree(_ context.Context) ([]*entity.TaxonomyNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.TaxonomyNode
	for name, id := range f.roots {
		node := &entity.TaxonomyNode{Name: name}
		for _, c := range f.byID {
			if c.ParentID != nil && *c.ParentID == id {
				node.Subcategories = append(node.Subcategories, c.Name)
			}
		}
		out = append(out, node)
	}
	return out, nil
}

func (f *fakeCategories) ListCategories(_ context.Context) ([]*entity.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Category
	for _, c := range f.byID {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

type fakeExtractor struct {
	result ocr.ExtractionResult
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(context.Context, string, string) (ocr.ExtractionResult, error) {
	f.calls++
	if f.err != nil {
		return ocr.ExtractionResult{}, f.err
	}
	return f.result, nil
}

type fakeParser struct {
	result  llm.ParsedReceipt
	err     error
	calls   int
	lastReq llm.ParseRequest
}

func (f *fakeParser) Parse(_ context.Context, req llm.ParseRequest) (llm.ParsedReceipt, []byte, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return llm.ParsedReceipt{}, nil, f.err
	}
	return f.result, []byte(`{}`), nil
}
