package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/event"
	"github.com/garyjia/invoice-intake/internal/domain/workflow"
)

// ApprovalService manages reviewer decisions on recorded invoices
type ApprovalService interface {
	Approve(ctx context.Context, id, decidedBy string) (*entity.ApprovalRecord, error)
	Reject(ctx context.Context, id, decidedBy string) (*entity.ApprovalRecord, error)
	Get(ctx context.Context, id string) (*entity.ApprovalRecord, error)
	List(ctx context.Context, status string) ([]*entity.ApprovalRecord, error)
	ListApproved(ctx context.Context) ([]entity.ApprovedInvoice, error)
	ExportApproved(ctx context.Context) ([]byte, error)
}

type approvalServiceImpl struct {
	approvals port.ApprovalRepository
	txManager port.TransactionManager
	publisher port.EventPublisher
	recorder  port.DecisionRecorder
	exporter  port.ReportExporter
	logger    Logger
	now       func() time.Time
}

// NewApprovalService creates a new ApprovalService. publisher, recorder and exporter may be nil.
func NewApprovalService(
	approvals port.ApprovalRepository,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	recorder port.DecisionRecorder,
	exporter port.ReportExporter,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		approvals: approvals,
		txManager: txManager,
		publisher: publisher,
		recorder:  recorder,
		exporter:  exporter,
		logger:    logger,
		now:       time.Now,
	}
}

// Approve marks a pending record approved. Approving an approved record is a no-op.
func (s *approvalServiceImpl) Approve(ctx context.Context, id, decidedBy string) (*entity.ApprovalRecord, error) {
	return s.decide(ctx, id, decidedBy, workflow.TriggerApprove)
}

// Reject marks a pending record rejected. Rejecting a rejected record is a no-op.
func (s *approvalServiceImpl) Reject(ctx context.Context, id, decidedBy string) (*entity.ApprovalRecord, error) {
	return s.decide(ctx, id, decidedBy, workflow.TriggerReject)
}

func (s *approvalServiceImpl) decide(ctx context.Context, id, decidedBy string, trigger workflow.Trigger) (*entity.ApprovalRecord, error) {
	decidedBy = strings.TrimSpace(decidedBy)
	if decidedBy == "" {
		decidedBy = entity.DeciderDefault
	}

	var (
		record  *entity.ApprovalRecord
		changed bool
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		record, err = s.approvals.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get approval: %w", err)
		}
		if record == nil {
			return fmt.Errorf("%w: %s", entity.ErrApprovalNotFound, id)
		}

		next, moved, err := workflow.Decide(txCtx, record.Status, trigger)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}

		decidedAt := s.now().UTC()
		if err := s.approvals.UpdateDecision(txCtx, id, next.String(), decidedBy, decidedAt); err != nil {
			if !errors.Is(err, entity.ErrApprovalNotFound) {
				return fmt.Errorf("update decision: %w", err)
			}
			// a concurrent decision won the pending row
			record, err = s.redecide(txCtx, id, trigger, err)
			return err
		}
		record.Status = next.String()
		record.DecidedBy = decidedBy
		record.DecidedAt = &decidedAt
		changed = true
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to decide approval", "approval_id", id, "trigger", trigger, "error", err)
		return nil, err
	}

	if changed {
		s.logger.Info("Approval decided", "approval_id", id, "status", record.Status, "decided_by", decidedBy)
		if s.recorder != nil {
			s.recorder.RecordStatus(record.Status)
		}
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, event.NewApprovalDecided(record, s.now())); err != nil {
				s.logger.Error("Failed to publish event", "event_type", event.TypeApprovalDecided, "error", err)
			}
		}
	}
	return record, nil
}

// redecide re-reads a record whose pending row was decided concurrently and answers
// the trigger against its current status
func (s *approvalServiceImpl) redecide(ctx context.Context, id string, trigger workflow.Trigger, updateErr error) (*entity.ApprovalRecord, error) {
	current, err := s.approvals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("update decision: %w", updateErr)
	}

	_, moved, err := workflow.Decide(ctx, current.Status, trigger)
	if err != nil {
		return nil, err
	}
	if moved {
		return nil, fmt.Errorf("update decision: %w", updateErr)
	}
	return current, nil
}

// Get returns one record or ErrApprovalNotFound
func (s *approvalServiceImpl) Get(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	record, err := s.approvals.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get approval", "approval_id", id, "error", err)
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrApprovalNotFound, id)
	}
	return record, nil
}

// List returns records with the given status, or all records when status is empty
func (s *approvalServiceImpl) List(ctx context.Context, status string) ([]*entity.ApprovalRecord, error) {
	if status != "" && !entity.IsValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	records, err := s.approvals.List(ctx, status)
	if err != nil {
		s.logger.Error("Failed to list approvals", "status", status, "error", err)
		return nil, err
	}
	return records, nil
}

// ListApproved returns approved records labelled by approval type
func (s *approvalServiceImpl) ListApproved(ctx context.Context) ([]entity.ApprovedInvoice, error) {
	records, err := s.List(ctx, entity.StatusApproved)
	if err != nil {
		return nil, err
	}

	rows := make([]entity.ApprovedInvoice, 0, len(records))
	for _, r := range records {
		rows = append(rows, entity.NewApprovedInvoice(r))
	}
	return rows, nil
}

// ExportApproved renders the approved list with the configured exporter
func (s *approvalServiceImpl) ExportApproved(ctx context.Context) ([]byte, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("no report exporter configured")
	}

	rows, err := s.ListApproved(ctx)
	if err != nil {
		return nil, err
	}

	data, err := s.exporter.ExportApproved(ctx, rows)
	if err != nil {
		s.logger.Error("Failed to export approved invoices", "count", len(rows), "error", err)
		return nil, fmt.Errorf("export approved: %w", err)
	}
	s.logger.Info("Exported approved invoices", "count", len(rows))
	return data, nil
}
