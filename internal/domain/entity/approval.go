package entity

import (
	"time"

	"github.com/garyjia/invoice-intake/internal/domain/rules"
)

// ApprovalRecord tracks the review lifecycle of one processed invoice
type ApprovalRecord struct {
	ID        string           `json:"id"`
	Invoice   ExtractedInvoice `json:"invoice_data"`
	Decision  *rules.Decision  `json:"decision,omitempty"`
	Status    string           `json:"status"`
	FilePath  string           `json:"file_path,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	DecidedAt *time.Time       `json:"decided_at,omitempty"`
	DecidedBy string           `json:"decided_by,omitempty"`
}

// IsDecided reports whether the record has left the pending state
func (r *ApprovalRecord) IsDecided() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// ApprovalType labels an approved record by who approved it
func (r *ApprovalRecord) ApprovalType() string {
	if r.DecidedBy == DeciderSystemAuto {
		return ApprovalTypeAuto
	}
	return ApprovalTypeHuman
}

// ApprovedInvoice is one row of the approved-invoices report
type ApprovedInvoice struct {
	ApprovalID    string     `json:"approval_id"`
	Vendor        string     `json:"vendor"`
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   string     `json:"invoice_date"`
	Total         string     `json:"total"`
	Currency      string     `json:"currency"`
	Confidence    float64    `json:"confidence"`
	ApprovalType  string     `json:"approval_type"`
	ApprovedBy    string     `json:"approved_by"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewApprovedInvoice builds a report row from an approved record
func NewApprovedInvoice(r *ApprovalRecord) ApprovedInvoice {
	return ApprovedInvoice{
		ApprovalID:    r.ID,
		Vendor:        r.Invoice.Vendor,
		InvoiceNumber: r.Invoice.InvoiceNumber,
		InvoiceDate:   r.Invoice.InvoiceDate,
		Total:         r.Invoice.TotalDisplay(),
		Currency:      r.Invoice.Currency,
		Confidence:    r.Invoice.Confidence,
		ApprovalType:  r.ApprovalType(),
		ApprovedBy:    r.DecidedBy,
		ApprovedAt:    r.DecidedAt,
		CreatedAt:     r.CreatedAt,
	}
}
