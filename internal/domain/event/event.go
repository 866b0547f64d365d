package event

import (
	"time"

	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
)

// Event is a domain event that can be published on the message bus
type Event interface {
	EventType() Type
}

// InvoiceValidated is emitted after an uploaded invoice has been evaluated and recorded
type InvoiceValidated struct {
	ApprovalID    string    `json:"approval_id"`
	Vendor        string    `json:"vendor"`
	InvoiceNumber string    `json:"invoice_number"`
	Total         string    `json:"total"`
	Currency      string    `json:"currency"`
	Approved      bool      `json:"approved"`
	Reason        string    `json:"reason"`
	Confidence    float64   `json:"confidence"`
	Type          Type      `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewInvoiceValidated builds the event from a recorded invoice and its decision
func NewInvoiceValidated(approvalID string, inv entity.ExtractedInvoice, d rules.Decision, at time.Time) InvoiceValidated {
	return InvoiceValidated{
		ApprovalID:    approvalID,
		Vendor:        inv.Vendor,
		InvoiceNumber: inv.InvoiceNumber,
		Total:         inv.TotalDisplay(),
		Currency:      inv.Currency,
		Approved:      d.Approved,
		Reason:        d.Reason,
		Confidence:    inv.Confidence,
		Type:          TypeInvoiceValidated,
		Timestamp:     at.UTC(),
	}
}

func (e InvoiceValidated) EventType() Type { return TypeInvoiceValidated }

// ApprovalDecided is emitted when a record leaves the pending state
type ApprovalDecided struct {
	ApprovalID string    `json:"approval_id"`
	Status     string    `json:"status"`
	DecidedBy  string    `json:"decided_by"`
	Type       Type      `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewApprovalDecided builds the event from a decided record
func NewApprovalDecided(r *entity.ApprovalRecord, at time.Time) ApprovalDecided {
	return ApprovalDecided{
		ApprovalID: r.ID,
		Status:     r.Status,
		DecidedBy:  r.DecidedBy,
		Type:       TypeApprovalDecided,
		Timestamp:  at.UTC(),
	}
}

func (e ApprovalDecided) EventType() Type { return TypeApprovalDecided }
