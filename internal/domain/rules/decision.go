package rules

// Check names reported in Decision.Checks, in evaluation order
const (
	CheckAmountWithinLimit     = "amount_within_limit"
	CheckConfidenceSufficient  = "confidence_sufficient"
	CheckDocumentTypeIsInvoice = "document_type_is_invoice"
	CheckDocumentNotReceipt    = "document_type_not_receipt"
	CheckBillToAuthorized      = "bill_to_authorized"
)

// CheckOrder lists every check in the order clauses appear in a rejection reason
var CheckOrder = []string{
	CheckAmountWithinLimit,
	CheckConfidenceSufficient,
	CheckDocumentTypeIsInvoice,
	CheckDocumentNotReceipt,
	CheckBillToAuthorized,
}

// Decision is the auditable outcome of one evaluation
type Decision struct {
	Approved bool            `json:"approved"`
	Reason   string          `json:"reason"`
	Checks   map[string]bool `json:"checks"`
	// Waived lists checks that were reported but not enforced by the config
	Waived   []string       `json:"waived"`
	Metadata map[string]any `json:"metadata"`
}

// FailedChecks returns the enforced checks that did not pass, in CheckOrder
func (d Decision) FailedChecks() []string {
	waived := make(map[string]bool, len(d.Waived))
	for _, name := range d.Waived {
		waived[name] = true
	}

	failed := []string{}
	for _, name := range CheckOrder {
		if !d.Checks[name] && !waived[name] {
			failed = append(failed, name)
		}
	}
	return failed
}

// DocumentType returns the classification recorded in the metadata
func (d Decision) DocumentType() DocumentType {
	if t, ok := d.Metadata["document_type"].(DocumentType); ok {
		return t
	}
	if s, ok := d.Metadata["document_type"].(string); ok {
		return DocumentType(s)
	}
	return DocumentUnknown
}
