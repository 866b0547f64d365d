package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Input is the evaluated view of an extracted invoice.
// Empty Vendor or BillTo means the field was not found.
type Input struct {
	Amount     decimal.Decimal
	Confidence float64
	Text       string
	Vendor     string
	BillTo     string
}

// Evaluate applies cfg to in and returns a fresh decision.
// It performs no I/O and does not validate ranges: a negative amount or a
// confidence outside [0,1] is compared as given.
func Evaluate(in Input, cfg Config) Decision {
	cfg = cfg.clone()
	docType := Classify(in.Text)

	checks := map[string]bool{
		CheckAmountWithinLimit:     in.Amount.LessThanOrEqual(cfg.AmountThreshold),
		CheckConfidenceSufficient:  in.Confidence >= cfg.MinConfidence,
		CheckDocumentTypeIsInvoice: docType == DocumentInvoice,
		CheckDocumentNotReceipt:    docType != DocumentReceipt,
		CheckBillToAuthorized:      billToAuthorized(in.BillTo, cfg.AllowedBillToNames),
	}

	waived := []string{}
	if !cfg.RequireInvoiceClassification {
		waived = append(waived, CheckDocumentTypeIsInvoice)
	}
	if !cfg.RejectReceiptClassification {
		waived = append(waived, CheckDocumentNotReceipt)
	}

	decision := Decision{
		Checks:   checks,
		Waived:   waived,
		Metadata: metadata(in, cfg, docType),
	}

	failed := decision.FailedChecks()
	if len(failed) == 0 {
		decision.Approved = true
		decision.Reason = fmt.Sprintf("Auto-approved: %s, %s confidence",
			formatAmount(in.Amount), formatPercent(in.Confidence))
		return decision
	}

	clauses := make([]string, 0, len(failed))
	for _, name := range failed {
		clauses = append(clauses, failureClause(name, in, cfg, docType))
	}
	decision.Reason = "Requires manual review: " + strings.Join(clauses, "; ")
	return decision
}

// billToAuthorized passes when no whitelist is configured, or when any
// whitelist entry occurs in billTo ignoring case
func billToAuthorized(billTo string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	if strings.TrimSpace(billTo) == "" {
		return false
	}

	lower := strings.ToLower(billTo)
	for _, name := range allowed {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

func failureClause(check string, in Input, cfg Config, docType DocumentType) string {
	switch check {
	case CheckAmountWithinLimit:
		return fmt.Sprintf("Amount %s exceeds limit of %s",
			formatAmount(in.Amount), formatAmount(cfg.AmountThreshold))
	case CheckConfidenceSufficient:
		return fmt.Sprintf("Confidence %s below minimum %s",
			formatPercent(in.Confidence), formatPercent(cfg.MinConfidence))
	case CheckDocumentTypeIsInvoice:
		return fmt.Sprintf("Document classified as %s, not an invoice", docType)
	case CheckDocumentNotReceipt:
		return "Document classified as receipt (payment already completed)"
	case CheckBillToAuthorized:
		if strings.TrimSpace(in.BillTo) == "" {
			return "Bill-to field not found (recipient whitelist is configured)"
		}
		return fmt.Sprintf("Invoice not addressed to authorized company (bill to: %s)", in.BillTo)
	default:
		return check + " failed"
	}
}

func metadata(in Input, cfg Config, docType DocumentType) map[string]any {
	var vendor, billTo any
	if in.Vendor != "" {
		vendor = in.Vendor
	}
	if in.BillTo != "" {
		billTo = in.BillTo
	}

	return map[string]any{
		"amount":        in.Amount,
		"confidence":    in.Confidence,
		"vendor":        vendor,
		"bill_to":       billTo,
		"document_type": docType,
		"config":        cfg,
	}
}

// formatAmount prints cents, or the exact value when it has finer precision
func formatAmount(d decimal.Decimal) string {
	if !d.Equal(d.Round(2)) {
		return "$" + d.String()
	}
	return "$" + d.StringFixed(2)
}

func formatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
