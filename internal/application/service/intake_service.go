package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/event"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/garyjia/invoice-intake/internal/domain/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned when a request fails shape validation before evaluation
var ErrInvalidInput = errors.New("invalid input")

// IntakeService runs uploaded invoices through extraction, evaluation and routing
type IntakeService interface {
	Extract(ctx context.Context, filename string, content []byte) (*entity.ExtractedInvoice, error)
	Validate(ctx context.Context, req ValidateRequest) (*rules.Decision, error)
	Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
	RequestApproval(ctx context.Context, inv entity.ExtractedInvoice) (*ApprovalRequestResult, error)
}

// ValidateRequest evaluates already-extracted fields
type ValidateRequest struct {
	Amount     decimal.Decimal
	Confidence float64
	Content    string
	Vendor     string
	BillTo     string
	Overrides  rules.Overrides
}

// ProcessRequest is one uploaded document plus optional rule overrides
type ProcessRequest struct {
	Filename  string
	Content   []byte
	Overrides rules.Overrides
}

// ProcessResult summarises what the pipeline did with a document
type ProcessResult struct {
	Status       string                   `json:"status"`
	Message      string                   `json:"message"`
	ApprovalID   string                   `json:"approval_id"`
	Invoice      entity.ExtractedInvoice  `json:"invoice_data"`
	Decision     rules.Decision           `json:"decision"`
	Notification *port.NotificationResult `json:"notification,omitempty"`
}

// ApprovalRequestResult is returned when a review is requested directly
type ApprovalRequestResult struct {
	ApprovalID   string                   `json:"approval_id"`
	Status       string                   `json:"status"`
	Notification *port.NotificationResult `json:"notification"`
}

// IntakeDependencies groups the collaborators of IntakeService.
// Storage, Notifier, Publisher and Recorder may be nil.
type IntakeDependencies struct {
	Extractor port.Extractor
	Approvals port.ApprovalRepository
	TxManager port.TransactionManager
	Storage   port.FileStorage
	Notifier  port.Notifier
	Publisher port.EventPublisher
	Recorder  port.DecisionRecorder
	Rules     rules.Config
	Logger    Logger
}

type intakeServiceImpl struct {
	deps IntakeDependencies
	now  func() time.Time
}

// NewIntakeService creates a new IntakeService
func NewIntakeService(deps IntakeDependencies) IntakeService {
	return &intakeServiceImpl{deps: deps, now: time.Now}
}

// Extract reads fields from a document without recording anything
func (s *intakeServiceImpl) Extract(ctx context.Context, filename string, content []byte) (*entity.ExtractedInvoice, error) {
	inv, err := s.deps.Extractor.Extract(ctx, filename, content)
	if err != nil {
		s.deps.Logger.Error("Extraction failed", "filename", filename, "error", err)
		if errors.Is(err, port.ErrExtractionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", port.ErrExtractionFailed, err)
	}
	return inv, nil
}

// Validate evaluates caller-supplied fields under the configured rules plus overrides
func (s *intakeServiceImpl) Validate(ctx context.Context, req ValidateRequest) (*rules.Decision, error) {
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidInput)
	}

	cfg := req.Overrides.Apply(s.deps.Rules)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	decision := rules.Evaluate(rules.Input{
		Amount:     req.Amount,
		Confidence: req.Confidence,
		Text:       req.Content,
		Vendor:     req.Vendor,
		BillTo:     req.BillTo,
	}, cfg)
	s.record(decision)

	s.deps.Logger.Info("Invoice validated", "approved", decision.Approved, "reason", decision.Reason)
	return &decision, nil
}

// Process extracts, evaluates and records a document, then notifies or auto-approves
func (s *intakeServiceImpl) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	cfg := req.Overrides.Apply(s.deps.Rules)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	id := uuid.NewString()
	filePath, err := s.store(ctx, id, req)
	if err != nil {
		return nil, err
	}

	inv, err := s.Extract(ctx, req.Filename, req.Content)
	if err != nil {
		s.discard(ctx, filePath)
		return nil, err
	}

	decision := rules.Evaluate(inv.RulesInput(), cfg)
	s.record(decision)

	record := &entity.ApprovalRecord{
		ID:        id,
		Invoice:   *inv,
		Decision:  &decision,
		Status:    entity.StatusPending,
		FilePath:  filePath,
		CreatedAt: s.now().UTC(),
	}

	if decision.Approved {
		next, _, err := workflow.Decide(ctx, record.Status, workflow.TriggerAutoApprove)
		if err != nil {
			s.discard(ctx, filePath)
			return nil, fmt.Errorf("auto-approve: %w", err)
		}
		decidedAt := record.CreatedAt
		record.Status = next.String()
		record.DecidedAt = &decidedAt
		record.DecidedBy = entity.DeciderSystemAuto
	}

	err = s.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.deps.Approvals.Create(txCtx, record); err != nil {
			return fmt.Errorf("create approval: %w", err)
		}
		return nil
	})
	if err != nil {
		s.deps.Logger.Error("Failed to record approval", "approval_id", id, "error", err)
		s.discard(ctx, filePath)
		return nil, err
	}
	s.recordStatus(record.Status)

	s.publish(ctx, event.NewInvoiceValidated(id, *inv, decision, s.now()))

	result := &ProcessResult{
		ApprovalID: id,
		Invoice:    *inv,
		Decision:   decision,
	}

	if decision.Approved {
		s.publish(ctx, event.NewApprovalDecided(record, s.now()))
		result.Status = entity.OutcomeAutoApproved
		result.Message = "Invoice auto-approved: " + decision.Reason
		s.deps.Logger.Info("Invoice auto-approved", "approval_id", id, "vendor", inv.Vendor, "total", inv.TotalDisplay())
		return result, nil
	}

	result.Status = entity.OutcomePendingApproval
	result.Notification = s.notify(ctx, port.ReviewRequest{ApprovalID: id, Invoice: *inv, Decision: &decision})
	result.Message = "Invoice sent for review: " + decision.Reason
	s.deps.Logger.Info("Invoice sent for review",
		"approval_id", id,
		"vendor", inv.Vendor,
		"failed_checks", decision.FailedChecks(),
		"notification", result.Notification.Status,
	)
	return result, nil
}

// RequestApproval records a pending review for caller-supplied fields and sends a card
func (s *intakeServiceImpl) RequestApproval(ctx context.Context, inv entity.ExtractedInvoice) (*ApprovalRequestResult, error) {
	decision := rules.Evaluate(inv.RulesInput(), s.deps.Rules)

	record := &entity.ApprovalRecord{
		ID:        uuid.NewString(),
		Invoice:   inv,
		Decision:  &decision,
		Status:    entity.StatusPending,
		CreatedAt: s.now().UTC(),
	}

	err := s.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.deps.Approvals.Create(txCtx, record); err != nil {
			return fmt.Errorf("create approval: %w", err)
		}
		return nil
	})
	if err != nil {
		s.deps.Logger.Error("Failed to record approval request", "error", err)
		return nil, err
	}
	s.recordStatus(record.Status)

	notification := s.notify(ctx, port.ReviewRequest{ApprovalID: record.ID, Invoice: inv, Decision: &decision})
	s.deps.Logger.Info("Approval requested", "approval_id", record.ID, "notification", notification.Status)

	return &ApprovalRequestResult{
		ApprovalID:   record.ID,
		Status:       record.Status,
		Notification: notification,
	}, nil
}

// discard removes an upload that no record points to
func (s *intakeServiceImpl) discard(ctx context.Context, path string) {
	if s.deps.Storage == nil || path == "" {
		return
	}
	if err := s.deps.Storage.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.deps.Logger.Error("Failed to remove orphaned upload", "path", path, "error", err)
	}
}

// store keeps a copy of the upload; returns "" when no storage is configured
func (s *intakeServiceImpl) store(ctx context.Context, id string, req ProcessRequest) (string, error) {
	if s.deps.Storage == nil || len(req.Content) == 0 {
		return "", nil
	}

	name := filepath.Base(req.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload.pdf"
	}
	path := filepath.Join("uploads", id+"_"+name)

	if err := s.deps.Storage.Save(ctx, path, req.Content); err != nil {
		s.deps.Logger.Error("Failed to store upload", "path", path, "error", err)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

// notify never fails the request; delivery problems are reported in the result
func (s *intakeServiceImpl) notify(ctx context.Context, req port.ReviewRequest) *port.NotificationResult {
	if s.deps.Notifier == nil {
		return &port.NotificationResult{Status: port.NotificationSkipped}
	}

	result, err := s.deps.Notifier.SendReviewCard(ctx, req)
	if err != nil {
		s.deps.Logger.Error("Failed to send review card", "approval_id", req.ApprovalID, "error", err)
		return &port.NotificationResult{Status: port.NotificationFailed, Error: err.Error()}
	}
	if result == nil {
		return &port.NotificationResult{Status: port.NotificationSkipped}
	}
	return result
}

func (s *intakeServiceImpl) publish(ctx context.Context, e event.Event) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(ctx, e); err != nil {
		s.deps.Logger.Error("Failed to publish event", "event_type", e.EventType(), "error", err)
	}
}

func (s *intakeServiceImpl) record(d rules.Decision) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordDecision(d)
	}
}

func (s *intakeServiceImpl) recordStatus(status string) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordStatus(status)
	}
}
