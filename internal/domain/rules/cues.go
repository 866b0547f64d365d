package rules

// Signal tells whether a cue points at an outstanding payment or a completed one
type Signal string

const (
	SignalObligation   Signal = "obligation"
	SignalConfirmation Signal = "confirmation"
)

// nearWindow is the number of bytes on either side of a match inspected by Cue.UnlessNear
const nearWindow = 40

// Cue is one scoring rule of the document classifier.
// A cue matches when any of its patterns occurs in the lower-cased text at a position
// that is not cancelled by a suppressor. A matching cue adds Weight to the score once,
// however many times its patterns occur.
type Cue struct {
	Name     string
	Signal   Signal
	Patterns []string
	Weight   int

	// UnlessOnLine cancels an occurrence when any marker is on the same line
	UnlessOnLine []string

	// UnlessNear cancels an occurrence when any marker is within nearWindow bytes
	UnlessNear []string
}

// zeroAmountMarkers pair an amount-due label with a zero balance
var zeroAmountMarkers = []string{"$0.00", ":0.00", " 0.00"}

// DefaultCues is the rule table used by Classify. Patterns are lower-case.
var DefaultCues = []Cue{
	// Obligation: payment is still owed
	{Name: "amount_due", Signal: SignalObligation, Patterns: []string{"amount due"}, Weight: 3, UnlessOnLine: zeroAmountMarkers},
	{Name: "balance_due", Signal: SignalObligation, Patterns: []string{"balance due"}, Weight: 3, UnlessOnLine: zeroAmountMarkers},
	{Name: "total_due", Signal: SignalObligation, Patterns: []string{"total due"}, Weight: 3, UnlessOnLine: zeroAmountMarkers},
	{
		Name:         "payment_request",
		Signal:       SignalObligation,
		Patterns:     []string{"please remit", "please pay", "payment required"},
		Weight:       3,
		UnlessOnLine: []string{"no payment required"},
	},
	{
		Name:     "payment_terms",
		Signal:   SignalObligation,
		Patterns: []string{"due date", "payment due", "net 30", "net 60", "due upon receipt", "payment terms"},
		Weight:   4,
	},
	{
		Name:     "remittance_details",
		Signal:   SignalObligation,
		Patterns: []string{"remit to", "bank details", "wire transfer", "bpay", "direct deposit"},
		Weight:   3,
	},
	{Name: "invoice_word", Signal: SignalObligation, Patterns: []string{"invoice"}, Weight: 2, UnlessNear: []string{"receipt"}},
	{
		Name:     "invoice_label",
		Signal:   SignalObligation,
		Patterns: []string{"invoice #", "invoice no", "invoice number", "invoice id"},
		Weight:   2,
	},

	// Confirmation: payment already completed
	{Name: "payment_thanks", Signal: SignalConfirmation, Patterns: []string{"thank you for your payment"}, Weight: -3},
	{Name: "payment_received", Signal: SignalConfirmation, Patterns: []string{"payment received"}, Weight: -3},
	{Name: "amount_paid", Signal: SignalConfirmation, Patterns: []string{"amount paid"}, Weight: -3},
	{Name: "paid_on", Signal: SignalConfirmation, Patterns: []string{"paid on"}, Weight: -3},
	{Name: "zero_balance", Signal: SignalConfirmation, Patterns: []string{"$0.00", "no payment required"}, Weight: -4},
	{
		Name:     "masked_card",
		Signal:   SignalConfirmation,
		Patterns: []string{"card ending", "visa ending", "mastercard ending", "****", "xxxx"},
		Weight:   -3,
	},
	{Name: "paypal", Signal: SignalConfirmation, Patterns: []string{"paypal"}, Weight: -3},
	{Name: "stripe", Signal: SignalConfirmation, Patterns: []string{"stripe"}, Weight: -3},
	{
		Name:     "autopay",
		Signal:   SignalConfirmation,
		Patterns: []string{"autopay", "auto-pay", "automatic payment", "direct debit"},
		Weight:   -3,
	},
	{
		Name:         "receipt_word",
		Signal:       SignalConfirmation,
		Patterns:     []string{"receipt"},
		Weight:       -2,
		UnlessOnLine: []string{"upon receipt"},
		UnlessNear:   []string{"invoice"},
	},
	{
		Name:     "receipt_label",
		Signal:   SignalConfirmation,
		Patterns: []string{"receipt #", "receipt no", "receipt number"},
		Weight:   -2,
	},
}
