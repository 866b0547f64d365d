package rules

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds the approval rules applied by Evaluate.
// It is a value: callers build one per evaluation and pass it in explicitly.
type Config struct {
	AmountThreshold              decimal.Decimal `json:"amount_threshold"`
	MinConfidence                float64         `json:"min_confidence"`
	RequireInvoiceClassification bool            `json:"require_invoice_classification"`
	RejectReceiptClassification  bool            `json:"reject_receipt_classification"`
	AllowedBillToNames           []string        `json:"allowed_bill_to_names"`
}

// DefaultConfig returns the built-in approval rules
func DefaultConfig() Config {
	return Config{
		AmountThreshold:              decimal.NewFromInt(500),
		MinConfidence:                0.85,
		RequireInvoiceClassification: true,
		RejectReceiptClassification:  true,
		AllowedBillToNames:           []string{},
	}
}

// Validate ensures the thresholds are usable
func (c Config) Validate() error {
	if c.AmountThreshold.IsNegative() {
		return fmt.Errorf("amount_threshold must not be negative, got %s", c.AmountThreshold.StringFixed(2))
	}
	if c.MinConfidence < 0.0 || c.MinConfidence > 1.0 {
		return fmt.Errorf("min_confidence must be between 0.0 and 1.0, got %.2f", c.MinConfidence)
	}
	return nil
}

// clone returns a copy that shares no memory with c
func (c Config) clone() Config {
	out := c
	out.AllowedBillToNames = append([]string{}, c.AllowedBillToNames...)
	return out
}

// Overrides carries per-request rule changes. A nil field keeps the base value.
type Overrides struct {
	AmountThreshold              *decimal.Decimal `json:"amount_threshold,omitempty"`
	MinConfidence                *float64         `json:"min_confidence,omitempty"`
	RequireInvoiceClassification *bool            `json:"require_invoice_classification,omitempty"`
	RejectReceiptClassification  *bool            `json:"reject_receipt_classification,omitempty"`
	AllowedBillToNames           []string         `json:"allowed_bill_to_names,omitempty"`
}

// IsZero reports whether no override is set
func (o Overrides) IsZero() bool {
	return o.AmountThreshold == nil &&
		o.MinConfidence == nil &&
		o.RequireInvoiceClassification == nil &&
		o.RejectReceiptClassification == nil &&
		o.AllowedBillToNames == nil
}

// Apply merges o over base and returns the effective config. base is not modified.
func (o Overrides) Apply(base Config) Config {
	out := base.clone()
	if o.AmountThreshold != nil {
		out.AmountThreshold = *o.AmountThreshold
	}
	if o.MinConfidence != nil {
		out.MinConfidence = *o.MinConfidence
	}
	if o.RequireInvoiceClassification != nil {
		out.RequireInvoiceClassification = *o.RequireInvoiceClassification
	}
	if o.RejectReceiptClassification != nil {
		out.RejectReceiptClassification = *o.RejectReceiptClassification
	}
	if o.AllowedBillToNames != nil {
		out.AllowedBillToNames = append([]string{}, o.AllowedBillToNames...)
	}
	return out
}
