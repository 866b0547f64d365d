package port

import (
	"context"
	"errors"

	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/event"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
)

// ErrExtractionFailed wraps every error raised while reading an uploaded document
var ErrExtractionFailed = errors.New("invoice extraction failed")

// Extractor turns an uploaded document into structured invoice fields
type Extractor interface {
	Extract(ctx context.Context, filename string, content []byte) (*entity.ExtractedInvoice, error)
}

// Notification status values
const (
	NotificationSent    = "sent"
	NotificationSkipped = "skipped"
	NotificationFailed  = "failed"
)

// ReviewRequest is the content of a review card
type ReviewRequest struct {
	ApprovalID string
	Invoice    entity.ExtractedInvoice
	Decision   *rules.Decision
}

// NotificationResult reports what happened to a review card
type NotificationResult struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier delivers review cards to human approvers
type Notifier interface {
	SendReviewCard(ctx context.Context, req ReviewRequest) (*NotificationResult, error)
}

// EventPublisher publishes domain events on the message bus
type EventPublisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// DecisionRecorder observes evaluator outcomes, typically for metrics
type DecisionRecorder interface {
	RecordDecision(d rules.Decision)
	RecordStatus(status string)
}

// ReportExporter renders approved invoices as a downloadable document
type ReportExporter interface {
	ExportApproved(ctx context.Context, rows []entity.ApprovedInvoice) ([]byte, error)
}
