package port

import (
	"context"
	"time"

	"github.com/garyjia/invoice-intake/internal/domain/entity"
)

// ApprovalRepository defines persistence operations for ApprovalRecord.
// GetByID returns (nil, nil) when the record does not exist.
type ApprovalRepository interface {
	Create(ctx context.Context, record *entity.ApprovalRecord) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error)
	UpdateDecision(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) error
	// List returns records newest first. An empty status returns every record.
	List(ctx context.Context, status string) ([]*entity.ApprovalRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
