package entity

import (
	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/shopspring/decimal"
)

// ExtractedInvoice is the structured result of reading one uploaded document
type ExtractedInvoice struct {
	Vendor        string          `json:"vendor,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	InvoiceDate   string          `json:"invoice_date,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Confidence    float64         `json:"confidence"`
	RawChars      int             `json:"raw_chars"`
	Content       string          `json:"content,omitempty"`
	BillTo        string          `json:"bill_to,omitempty"`
}

// RulesInput returns the evaluator view of the invoice
func (i ExtractedInvoice) RulesInput() rules.Input {
	return rules.Input{
		Amount:     i.Total,
		Confidence: i.Confidence,
		Text:       i.Content,
		Vendor:     i.Vendor,
		BillTo:     i.BillTo,
	}
}

// TotalDisplay formats the total with two decimals
func (i ExtractedInvoice) TotalDisplay() string {
	return i.Total.StringFixed(2)
}
