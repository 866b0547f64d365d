package event

// Type identifies the type of domain event
type Type string

const (
	TypeInvoiceValidated Type = "InvoiceValidated"
	TypeApprovalDecided  Type = "ApprovalDecided"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInvoiceValidated, TypeApprovalDecided:
		return true
	default:
		return false
	}
}

// Subject returns the message-bus subject events of this type are published on
func (t Type) Subject() string {
	switch t {
	case TypeInvoiceValidated:
		return "invoice.validated"
	case TypeApprovalDecided:
		return "invoice.decided"
	default:
		return "invoice.unknown"
	}
}
