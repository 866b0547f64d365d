// Package memory provides in-process repositories for demos and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
)

// ApprovalRepository keeps approval records in a map. Records are copied in and out.
type ApprovalRepository struct {
	mu      sync.RWMutex
	records map[string]*entity.ApprovalRecord
}

// NewApprovalRepository creates an empty repository
func NewApprovalRepository() *ApprovalRepository {
	return &ApprovalRepository{records: make(map[string]*entity.ApprovalRecord)}
}

func (r *ApprovalRepository) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("approval %s already exists", record.ID)
	}
	r.records[record.ID] = clone(record)
	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return clone(record), nil
}

func (r *ApprovalRepository) UpdateDecision(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok || record.Status != entity.StatusPending {
		return fmt.Errorf("%w: no pending approval %s", entity.ErrApprovalNotFound, id)
	}
	record.Status = status
	record.DecidedBy = decidedBy
	record.DecidedAt = &decidedAt
	return nil
}

func (r *ApprovalRepository) List(ctx context.Context, status string) ([]*entity.ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*entity.ApprovalRecord{}
	for _, record := range r.records {
		if status == "" || record.Status == status {
			out = append(out, clone(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// WithTransaction runs fn directly; the map lock already serialises each call
func (r *ApprovalRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func clone(record *entity.ApprovalRecord) *entity.ApprovalRecord {
	cp := *record
	if record.DecidedAt != nil {
		t := *record.DecidedAt
		cp.DecidedAt = &t
	}
	if record.Decision != nil {
		d := *record.Decision
		cp.Decision = &d
	}
	return &cp
}

// Verify interface compliance
var (
	_ port.ApprovalRepository = (*ApprovalRepository)(nil)
	_ port.TransactionManager = (*ApprovalRepository)(nil)
)
