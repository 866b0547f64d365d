package rules

import "strings"

// DocumentType is the classifier's verdict on whether a document still asks for payment
type DocumentType string

const (
	DocumentInvoice DocumentType = "invoice"
	DocumentReceipt DocumentType = "receipt"
	DocumentUnknown DocumentType = "unknown"
)

// String returns the string representation of the document type
func (t DocumentType) String() string {
	return string(t)
}

// Score thresholds: above invoiceScore is an invoice, below receiptScore is a receipt
const (
	invoiceScore = 2
	receiptScore = -2
)

// Scoring is the explainable result of folding a text over a cue table
type Scoring struct {
	Score   int          `json:"score"`
	Type    DocumentType `json:"document_type"`
	Matched []string     `json:"matched_cues"`
}

// Classify decides whether text reads like an invoice, a receipt or neither
func Classify(text string) DocumentType {
	return Score(text).Type
}

// Score folds text over DefaultCues
func Score(text string) Scoring {
	return ScoreWith(DefaultCues, text)
}

// ScoreWith folds text over the given cue table. Matching is case-insensitive.
func ScoreWith(cues []Cue, text string) Scoring {
	if strings.TrimSpace(text) == "" {
		return Scoring{Type: DocumentUnknown, Matched: []string{}}
	}

	lower := strings.ToLower(text)
	result := Scoring{Matched: []string{}}
	for _, cue := range cues {
		if cue.matches(lower) {
			result.Score += cue.Weight
			result.Matched = append(result.Matched, cue.Name)
		}
	}

	switch {
	case result.Score > invoiceScore:
		result.Type = DocumentInvoice
	case result.Score < receiptScore:
		result.Type = DocumentReceipt
	default:
		result.Type = DocumentUnknown
	}
	return result
}

// matches reports whether any pattern occurs in lower without being suppressed
func (c Cue) matches(lower string) bool {
	for _, pattern := range c.Patterns {
		if pattern == "" {
			continue
		}
		offset := 0
		for {
			i := strings.Index(lower[offset:], pattern)
			if i < 0 {
				break
			}
			start := offset + i
			end := start + len(pattern)
			if !c.suppressed(lower, start, end) {
				return true
			}
			offset = start + 1
		}
	}
	return false
}

func (c Cue) suppressed(lower string, start, end int) bool {
	if len(c.UnlessOnLine) > 0 {
		line := lineAround(lower, start, end)
		for _, marker := range c.UnlessOnLine {
			if strings.Contains(line, marker) {
				return true
			}
		}
	}

	if len(c.UnlessNear) > 0 {
		from := max(start-nearWindow, 0)
		to := min(end+nearWindow, len(lower))
		window := lower[from:to]
		for _, marker := range c.UnlessNear {
			if strings.Contains(window, marker) {
				return true
			}
		}
	}
	return false
}

// lineAround returns the line of s that contains s[start:end]
func lineAround(s string, start, end int) string {
	from := strings.LastIndexByte(s[:start], '\n') + 1
	to := len(s)
	if i := strings.IndexByte(s[end:], '\n'); i >= 0 {
		to = end + i
	}
	return s[from:to]
}
