package rules

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceText = "INVOICE\nAmount Due: $450.00\nPlease remit payment"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEvaluate_ScenarioAutoApproved(t *testing.T) {
	d := Evaluate(Input{
		Amount:     dec("450.00"),
		Confidence: 0.92,
		Text:       invoiceText,
	}, DefaultConfig())

	assert.True(t, d.Approved)
	assert.Equal(t, "Auto-approved: $450.00, 92.0% confidence", d.Reason)
	for _, name := range CheckOrder {
		assert.True(t, d.Checks[name], name)
	}
	assert.Empty(t, d.Waived)
}

func TestEvaluate_ScenarioAmountOverLimit(t *testing.T) {
	d := Evaluate(Input{
		Amount:     dec("600.00"),
		Confidence: 0.95,
		Text:       invoiceText,
	}, DefaultConfig())

	assert.False(t, d.Approved)
	assert.False(t, d.Checks[CheckAmountWithinLimit])
	assert.Contains(t, d.Reason, "exceeds limit")
	assert.Equal(t, "Requires manual review: Amount $600.00 exceeds limit of $500.00", d.Reason)
}

func TestEvaluate_AmountBeyondCentsKeepsPrecision(t *testing.T) {
	d := Evaluate(Input{
		Amount:     dec("500.0000001"),
		Confidence: 0.95,
		Text:       invoiceText,
	}, DefaultConfig())

	assert.False(t, d.Approved)
	assert.Equal(t, "Requires manual review: Amount $500.0000001 exceeds limit of $500.00", d.Reason)
}

func TestEvaluate_ScenarioReceipt(t *testing.T) {
	text := "RECEIPT\nAmount Paid: $100.00\nThank you for your payment\nVisa ending 1234\nBalance Due: $0.00"
	require.Equal(t, DocumentReceipt, Classify(text))

	d := Evaluate(Input{Amount: dec("100"), Confidence: 0.95, Text: text}, DefaultConfig())

	assert.False(t, d.Approved)
	assert.False(t, d.Checks[CheckDocumentNotReceipt])
	assert.False(t, d.Checks[CheckDocumentTypeIsInvoice])
	assert.Equal(t, DocumentReceipt, d.DocumentType())
	assert.Equal(t,
		"Requires manual review: Document classified as receipt, not an invoice; "+
			"Document classified as receipt (payment already completed)",
		d.Reason)
}

func TestEvaluate_ScenarioUnauthorizedBillTo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedBillToNames = []string{"Acme Industries", "Acme Corp"}

	d := Evaluate(Input{
		Amount:     dec("5000"),
		Confidence: 0.99,
		Text:       "Invoice Number: 7\nAmount Due: $5000\nPayment terms: Net 30\nRemit to: Competitor Bank",
		BillTo:     "Competitor Industries Ltd",
	}, cfg)

	assert.False(t, d.Approved)
	assert.False(t, d.Checks[CheckBillToAuthorized])
	assert.False(t, d.Checks[CheckAmountWithinLimit])
	assert.True(t, d.Checks[CheckDocumentTypeIsInvoice])
	assert.Contains(t, d.Reason, "not addressed to authorized company")
	assert.Contains(t, d.Reason, "(bill to: Competitor Industries Ltd)")
}

func TestEvaluate_AmountBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AmountThreshold = dec("250.00")

	tests := []struct {
		name     string
		amount   string
		expected bool
	}{
		{"below threshold", "249.99", true},
		{"at threshold", "250.00", true},
		{"just above threshold", "250.01", false},
		{"negative amount passes through", "-10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(Input{Amount: dec(tt.amount), Confidence: 1, Text: invoiceText}, cfg)
			assert.Equal(t, tt.expected, d.Checks[CheckAmountWithinLimit])
		})
	}
}

func TestEvaluate_ConfidenceBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.85

	tests := []struct {
		name       string
		confidence float64
		expected   bool
	}{
		{"at minimum", 0.85, true},
		{"just below minimum", 0.8499, false},
		{"above one passes through", 1.5, true},
		{"negative", -0.1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(Input{Amount: dec("1"), Confidence: tt.confidence, Text: invoiceText}, cfg)
			assert.Equal(t, tt.expected, d.Checks[CheckConfidenceSufficient])
		})
	}
}

func TestEvaluate_ConfidenceReason(t *testing.T) {
	d := Evaluate(Input{Amount: dec("10"), Confidence: 0.5, Text: invoiceText}, DefaultConfig())

	assert.False(t, d.Approved)
	assert.Equal(t, "Requires manual review: Confidence 50.0% below minimum 85.0%", d.Reason)
}

func TestEvaluate_BillToWhitelist(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedBillToNames = []string{"Acme Industries"}

	tests := []struct {
		name     string
		billTo   string
		expected bool
	}{
		{"case-insensitive substring", "ACME INDUSTRIES INC", true},
		{"exact", "Acme Industries", true},
		{"different company", "Acme Manufacturing", false},
		{"absent", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(Input{Amount: dec("10"), Confidence: 0.9, Text: invoiceText, BillTo: tt.billTo}, cfg)
			assert.Equal(t, tt.expected, d.Checks[CheckBillToAuthorized])
			assert.Equal(t, tt.expected, d.Approved)
		})
	}
}

func TestEvaluate_BillToFieldNotFound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedBillToNames = []string{"Acme Industries"}

	d := Evaluate(Input{Amount: dec("10"), Confidence: 0.9, Text: invoiceText}, cfg)

	assert.False(t, d.Checks[CheckBillToAuthorized])
	assert.Contains(t, d.Reason, "field not found")
}

func TestEvaluate_EmptyWhitelistAlwaysAuthorized(t *testing.T) {
	for _, billTo := range []string{"", "Anyone At All"} {
		d := Evaluate(Input{Amount: dec("10"), Confidence: 0.9, Text: invoiceText, BillTo: billTo}, DefaultConfig())
		assert.True(t, d.Checks[CheckBillToAuthorized], "bill_to %q", billTo)
	}
}

func TestEvaluate_ClassificationGatesDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireInvoiceClassification = false
	cfg.RejectReceiptClassification = false

	d := Evaluate(Input{Amount: dec("10"), Confidence: 0.9, Text: "Thank you for your payment via PayPal"}, cfg)

	assert.True(t, d.Approved)
	assert.False(t, d.Checks[CheckDocumentTypeIsInvoice])
	assert.False(t, d.Checks[CheckDocumentNotReceipt])
	assert.Equal(t, []string{CheckDocumentTypeIsInvoice, CheckDocumentNotReceipt}, d.Waived)
	assert.Empty(t, d.FailedChecks())
}

func TestEvaluate_UnknownDocumentReason(t *testing.T) {
	d := Evaluate(Input{Amount: dec("10"), Confidence: 0.9, Text: ""}, DefaultConfig())

	assert.False(t, d.Approved)
	assert.True(t, d.Checks[CheckDocumentNotReceipt])
	assert.Equal(t, "Requires manual review: Document classified as unknown, not an invoice", d.Reason)
}

func TestEvaluate_ReasonClauseOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedBillToNames = []string{"Acme"}

	d := Evaluate(Input{Amount: dec("900"), Confidence: 0.1, Text: "", BillTo: "Globex"}, cfg)

	assert.Equal(t,
		"Requires manual review: Amount $900.00 exceeds limit of $500.00; "+
			"Confidence 10.0% below minimum 85.0%; "+
			"Document classified as unknown, not an invoice; "+
			"Invoice not addressed to authorized company (bill to: Globex)",
		d.Reason)
	assert.Equal(t,
		[]string{CheckAmountWithinLimit, CheckConfidenceSufficient, CheckDocumentTypeIsInvoice, CheckBillToAuthorized},
		d.FailedChecks())
}

func TestEvaluate_Metadata(t *testing.T) {
	cfg := DefaultConfig()

	d := Evaluate(Input{Amount: dec("12.5"), Confidence: 0.9, Text: invoiceText, Vendor: "Contoso"}, cfg)

	assert.True(t, d.Metadata["amount"].(decimal.Decimal).Equal(dec("12.5")))
	assert.Equal(t, 0.9, d.Metadata["confidence"])
	assert.Equal(t, "Contoso", d.Metadata["vendor"])
	assert.Nil(t, d.Metadata["bill_to"])
	assert.Equal(t, DocumentInvoice, d.Metadata["document_type"])
	assert.Equal(t, cfg, d.Metadata["config"])

	d = Evaluate(Input{Amount: dec("12.5"), Confidence: 0.9, Text: invoiceText}, cfg)
	assert.Nil(t, d.Metadata["vendor"])
}

func TestEvaluate_VendorDoesNotGate(t *testing.T) {
	base := Input{Amount: dec("10"), Confidence: 0.9, Text: invoiceText}
	withVendor := base
	withVendor.Vendor = "Anyone"

	assert.Equal(t, Evaluate(base, DefaultConfig()).Approved, Evaluate(withVendor, DefaultConfig()).Approved)
}

func TestEvaluate_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedBillToNames = []string{"Acme"}
	in := Input{Amount: dec("321.09"), Confidence: 0.87, Text: invoiceText, Vendor: "V", BillTo: "Acme Ltd"}

	first, err := json.Marshal(Evaluate(in, cfg))
	require.NoError(t, err)
	second, err := json.Marshal(Evaluate(in, cfg))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestEvaluate_DoesNotRetainConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedBillToNames = []string{"Acme"}

	d := Evaluate(Input{Amount: dec("1"), Confidence: 1, Text: invoiceText, BillTo: "Acme"}, cfg)
	cfg.AllowedBillToNames[0] = "Changed"

	recorded := d.Metadata["config"].(Config)
	assert.Equal(t, []string{"Acme"}, recorded.AllowedBillToNames)
}

func TestOverrides_Apply(t *testing.T) {
	base := DefaultConfig()
	threshold := dec("1000")
	minConfidence := 0.5
	off := false

	effective := Overrides{
		AmountThreshold:              &threshold,
		MinConfidence:                &minConfidence,
		RequireInvoiceClassification: &off,
		AllowedBillToNames:           []string{"Acme"},
	}.Apply(base)

	assert.True(t, effective.AmountThreshold.Equal(threshold))
	assert.Equal(t, 0.5, effective.MinConfidence)
	assert.False(t, effective.RequireInvoiceClassification)
	assert.True(t, effective.RejectReceiptClassification)
	assert.Equal(t, []string{"Acme"}, effective.AllowedBillToNames)

	assert.True(t, base.AmountThreshold.Equal(dec("500")))
	assert.Equal(t, 0.85, base.MinConfidence)
	assert.Empty(t, base.AllowedBillToNames)
}

func TestOverrides_IsZero(t *testing.T) {
	assert.True(t, Overrides{}.IsZero())
	v := 0.7
	assert.False(t, Overrides{MinConfidence: &v}.IsZero())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		errorContains string
	}{
		{"defaults", DefaultConfig(), ""},
		{"negative threshold", Config{AmountThreshold: dec("-1"), MinConfidence: 0.5}, "amount_threshold"},
		{"confidence above one", Config{AmountThreshold: dec("1"), MinConfidence: 1.2}, "min_confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.errorContains == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}
