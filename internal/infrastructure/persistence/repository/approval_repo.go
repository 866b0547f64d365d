package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/garyjia/invoice-intake/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const approvalColumns = `id, invoice_data, decision_data, status, file_path, created_at, decided_at, decided_by`

// ApprovalRepository implements port.ApprovalRepository on the approvals table
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new approval record
func (r *ApprovalRepository) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	invoiceData, err := json.Marshal(record.Invoice)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice: %w", err)
	}

	var decisionData sql.NullString
	if record.Decision != nil {
		raw, err := json.Marshal(record.Decision)
		if err != nil {
			return fmt.Errorf("failed to marshal decision: %w", err)
		}
		decisionData = sql.NullString{String: string(raw), Valid: true}
	}

	var decidedAt sql.NullTime
	if record.DecidedAt != nil {
		decidedAt = sql.NullTime{Time: *record.DecidedAt, Valid: true}
	}

	query := `
		INSERT INTO approvals (` + approvalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		record.ID,
		string(invoiceData),
		decisionData,
		record.Status,
		record.FilePath,
		record.CreatedAt,
		decidedAt,
		record.DecidedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create approval", zap.String("id", record.ID), zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

// GetByID retrieves an approval record; (nil, nil) when absent
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = ?`

	record, err := scanApproval(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return record, nil
}

// UpdateDecision moves a pending record to its decided status.
// Returns entity.ErrApprovalNotFound when no pending row matched.
func (r *ApprovalRepository) UpdateDecision(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) error {
	query := `
		UPDATE approvals
		SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, status, decidedBy, decidedAt, id)
	if err != nil {
		r.logger.Error("Failed to update approval decision", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: no pending approval %s", entity.ErrApprovalNotFound, id)
	}
	return nil
}

// List returns records newest first, optionally filtered by status
func (r *ApprovalRepository) List(ctx context.Context, status string) ([]*entity.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.String("status", status), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	records := []*entity.ApprovalRecord{}
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row rowScanner) (*entity.ApprovalRecord, error) {
	var (
		record       entity.ApprovalRecord
		invoiceData  string
		decisionData sql.NullString
		decidedAt    sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&invoiceData,
		&decisionData,
		&record.Status,
		&record.FilePath,
		&record.CreatedAt,
		&decidedAt,
		&record.DecidedBy,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(invoiceData), &record.Invoice); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}
	if decisionData.Valid && decisionData.String != "" {
		var d rules.Decision
		if err := json.Unmarshal([]byte(decisionData.String), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
		}
		record.Decision = &d
	}
	if decidedAt.Valid {
		record.DecidedAt = &decidedAt.Time
	}
	return &record, nil
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
