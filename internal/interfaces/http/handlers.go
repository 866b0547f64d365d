package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/application/service"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/garyjia/invoice-intake/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	intakeService   service.IntakeService
	approvalService service.ApprovalService
	maxUploadBytes  int64
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	intakeService service.IntakeService,
	approvalService service.ApprovalService,
	maxUploadBytes int64,
	logger Logger,
) *Handlers {
	return &Handlers{
		intakeService:   intakeService,
		approvalService: approvalService,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

// Response is the error envelope; successful calls return the resource itself
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ValidateBody is the JSON body of POST /invoices/validate
type ValidateBody struct {
	Amount     *decimal.Decimal `json:"amount"`
	Confidence *float64         `json:"confidence"`
	Content    string           `json:"content"`
	Vendor     string           `json:"vendor"`
	BillTo     string           `json:"bill_to"`
	rules.Overrides
}

// DecisionResponse is the decision plus a convenience copy of the failed checks
type DecisionResponse struct {
	rules.Decision
	FailedChecks []string `json:"failed_checks"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Extract handles POST /invoices/extract
func (h *Handlers) Extract(c *gin.Context) {
	filename, content, ok := h.readUpload(c)
	if !ok {
		return
	}

	inv, err := h.intakeService.Extract(c.Request.Context(), filename, content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// Validate handles POST /invoices/validate
func (h *Handlers) Validate(c *gin.Context) {
	var body ValidateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Error("Invalid validate request", "error", err)
		badRequest(c, "invalid request body")
		return
	}
	if body.Amount == nil {
		badRequest(c, "amount is required")
		return
	}
	if body.Confidence == nil {
		badRequest(c, "confidence is required")
		return
	}

	decision, err := h.intakeService.Validate(c.Request.Context(), service.ValidateRequest{
		Amount:     *body.Amount,
		Confidence: *body.Confidence,
		Content:    body.Content,
		Vendor:     body.Vendor,
		BillTo:     body.BillTo,
		Overrides:  body.Overrides,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DecisionResponse{Decision: *decision, FailedChecks: decision.FailedChecks()})
}

// Process handles POST /invoices/process
func (h *Handlers) Process(c *gin.Context) {
	overrides, err := parseQueryOverrides(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	filename, content, ok := h.readUpload(c)
	if !ok {
		return
	}

	result, err := h.intakeService.Process(c.Request.Context(), service.ProcessRequest{
		Filename:  filename,
		Content:   content,
		Overrides: overrides,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RequestApproval handles POST /invoices/request-approval
func (h *Handlers) RequestApproval(c *gin.Context) {
	var inv entity.ExtractedInvoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		h.logger.Error("Invalid approval request", "error", err)
		badRequest(c, "invalid request body")
		return
	}
	if inv.Total.IsNegative() {
		badRequest(c, "total must not be negative")
		return
	}
	if inv.Confidence < 0 || inv.Confidence > 1 {
		badRequest(c, "confidence must be between 0 and 1")
		return
	}

	result, err := h.intakeService.RequestApproval(c.Request.Context(), inv)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetApproval handles GET /invoices/approval/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	record, err := h.approvalService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Approve handles GET /invoices/approval/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	record, err := h.approvalService.Approve(c.Request.Context(), c.Param("id"), c.Query("by"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Reject handles GET /invoices/approval/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	record, err := h.approvalService.Reject(c.Request.Context(), c.Param("id"), c.Query("by"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListApprovals handles GET /invoices/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	records, err := h.approvalService.List(c.Request.Context(), strings.ToLower(c.Query("status")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []*entity.ApprovalRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"approvals": records, "count": len(records)})
}

// ListApproved handles GET /invoices/approvals/approved
func (h *Handlers) ListApproved(c *gin.Context) {
	rows, err := h.approvalService.ListApproved(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved_invoices": rows, "count": len(rows)})
}

// ExportApproved handles GET /invoices/approvals/approved/export
func (h *Handlers) ExportApproved(c *gin.Context) {
	data, err := h.approvalService.ExportApproved(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("approved_invoices_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// readUpload reads the multipart "file" field; it writes the 400 itself on failure
func (h *Handlers) readUpload(c *gin.Context) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Error("Missing upload", "error", err)
		badRequest(c, "file is required")
		return "", nil, false
	}

	f, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "failed to open upload")
		return "", nil, false
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "failed to read upload")
		return "", nil, false
	}
	return fileHeader.Filename, content, true
}

// parseQueryOverrides reads per-request rule overrides from the query string
func parseQueryOverrides(c *gin.Context) (rules.Overrides, error) {
	var o rules.Overrides

	if v := c.Query("amount_threshold"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return o, fmt.Errorf("invalid amount_threshold: %q", v)
		}
		o.AmountThreshold = &d
	}
	if v := c.Query("confidence_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return o, fmt.Errorf("invalid confidence_threshold: %q", v)
		}
		o.MinConfidence = &f
	}
	if v := c.Query("require_invoice_classification"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid require_invoice_classification: %q", v)
		}
		o.RequireInvoiceClassification = &b
	}
	if v := c.Query("reject_receipt_classification"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid reject_receipt_classification: %q", v)
		}
		o.RejectReceiptClassification = &b
	}
	return o, nil
}

// writeError maps service errors onto status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, entity.ErrApprovalNotFound):
		status, message = http.StatusNotFound, "approval not found"
	case errors.Is(err, workflow.ErrAlreadyDecided):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, port.ErrExtractionFailed):
		status, message = http.StatusBadRequest, err.Error()
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, Response{Success: false, Error: message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message})
}
