package lark

import (
	"fmt"
	"strings"

	"github.com/garyjia/invoice-intake/internal/application/port"
)

// Card is a Lark interactive message card
type Card struct {
	Config   CardConfig    `json:"config"`
	Header   CardHeader    `json:"header"`
	Elements []CardElement `json:"elements"`
}

type CardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type CardHeader struct {
	Title    CardText `json:"title"`
	Template string   `json:"template"`
}

type CardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type CardField struct {
	IsShort bool     `json:"is_short"`
	Text    CardText `json:"text"`
}

type CardButton struct {
	Tag  string   `json:"tag"`
	Text CardText `json:"text"`
	Type string   `json:"type"`
	URL  string   `json:"url"`
}

// CardElement is a div, hr or action block; unused fields are omitted
type CardElement struct {
	Tag     string       `json:"tag"`
	Text    *CardText    `json:"text,omitempty"`
	Fields  []CardField  `json:"fields,omitempty"`
	Actions []CardButton `json:"actions,omitempty"`
}

// Header templates
const (
	templateApproved = "green"
	templateReview   = "orange"
)

// BuildReviewCard renders the review card for one approval record
func BuildReviewCard(req port.ReviewRequest, apiBaseURL string) Card {
	inv := req.Invoice

	title := "Invoice needs review"
	template := templateReview
	reason := "Manual review requested"
	if req.Decision != nil {
		reason = req.Decision.Reason
		if req.Decision.Approved {
			title = "Invoice auto-approved"
			template = templateApproved
		}
	}

	fields := []CardField{
		shortField("Vendor", orDash(inv.Vendor)),
		shortField("Invoice #", orDash(inv.InvoiceNumber)),
		shortField("Date", orDash(inv.InvoiceDate)),
		shortField("Total", fmt.Sprintf("%s %s", inv.TotalDisplay(), inv.Currency)),
		shortField("Confidence", fmt.Sprintf("%.1f%%", inv.Confidence*100)),
	}
	if inv.BillTo != "" {
		fields = append(fields, shortField("Bill to", inv.BillTo))
	}

	base := strings.TrimRight(apiBaseURL, "/")
	return Card{
		Config: CardConfig{WideScreenMode: true},
		Header: CardHeader{
			Title:    CardText{Tag: "plain_text", Content: title},
			Template: template,
		},
		Elements: []CardElement{
			{Tag: "div", Fields: fields},
			{Tag: "div", Text: &CardText{Tag: "lark_md", Content: "**Reason:** " + reason}},
			{Tag: "hr"},
			{Tag: "action", Actions: []CardButton{
				button("Approve", "primary", fmt.Sprintf("%s/invoices/approval/%s/approve", base, req.ApprovalID)),
				button("Reject", "danger", fmt.Sprintf("%s/invoices/approval/%s/reject", base, req.ApprovalID)),
			}},
		},
	}
}

func shortField(label, value string) CardField {
	return CardField{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**%s**\n%s", label, value)}}
}

func button(label, kind, url string) CardButton {
	return CardButton{Tag: "button", Text: CardText{Tag: "plain_text", Content: label}, Type: kind, URL: url}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
