package entity

import "errors"

// Status constants for ApprovalRecord
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// DeciderSystemAuto marks records approved by the rules without a human reviewer
const DeciderSystemAuto = "system-auto"

// DeciderDefault is used when a reviewer does not identify themselves
const DeciderDefault = "user"

// Approval type labels shown in the approved-invoices report
const (
	ApprovalTypeAuto  = "AI Auto-Approved"
	ApprovalTypeHuman = "Human Approved"
)

// Process outcome constants returned by the intake pipeline
const (
	OutcomeAutoApproved    = "auto_approved"
	OutcomePendingApproval = "pending_approval"
)

// ErrApprovalNotFound is returned when no approval record has the requested ID
var ErrApprovalNotFound = errors.New("approval not found")

// IsValidStatus reports whether s is one of the record statuses
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}
