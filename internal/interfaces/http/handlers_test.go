package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/application/service"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/garyjia/invoice-intake/internal/domain/workflow"
	"github.com/garyjia/invoice-intake/internal/observability/metrics"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeIntake struct {
	extractFn         func(filename string, content []byte) (*entity.ExtractedInvoice, error)
	validateFn        func(req service.ValidateRequest) (*rules.Decision, error)
	processFn         func(req service.ProcessRequest) (*service.ProcessResult, error)
	requestApprovalFn func(inv entity.ExtractedInvoice) (*service.ApprovalRequestResult, error)
}

func (f *fakeIntake) Extract(_ context.Context, filename string, content []byte) (*entity.ExtractedInvoice, error) {
	return f.extractFn(filename, content)
}

func (f *fakeIntake) Validate(_ context.Context, req service.ValidateRequest) (*rules.Decision, error) {
	return f.validateFn(req)
}

func (f *fakeIntake) Process(_ context.Context, req service.ProcessRequest) (*service.ProcessResult, error) {
	return f.processFn(req)
}

func (f *fakeIntake) RequestApproval(_ context.Context, inv entity.ExtractedInvoice) (*service.ApprovalRequestResult, error) {
	return f.requestApprovalFn(inv)
}

type fakeApprovals struct {
	decideFn       func(id, by string, approve bool) (*entity.ApprovalRecord, error)
	getFn          func(id string) (*entity.ApprovalRecord, error)
	listFn         func(status string) ([]*entity.ApprovalRecord, error)
	listApprovedFn func() ([]entity.ApprovedInvoice, error)
	exportFn       func() ([]byte, error)
}

func (f *fakeApprovals) Approve(_ context.Context, id, by string) (*entity.ApprovalRecord, error) {
	return f.decideFn(id, by, true)
}

func (f *fakeApprovals) Reject(_ context.Context, id, by string) (*entity.ApprovalRecord, error) {
	return f.decideFn(id, by, false)
}

func (f *fakeApprovals) Get(_ context.Context, id string) (*entity.ApprovalRecord, error) {
	return f.getFn(id)
}

func (f *fakeApprovals) List(_ context.Context, status string) ([]*entity.ApprovalRecord, error) {
	return f.listFn(status)
}

func (f *fakeApprovals) ListApproved(context.Context) ([]entity.ApprovedInvoice, error) {
	return f.listApprovedFn()
}

func (f *fakeApprovals) ExportApproved(context.Context) ([]byte, error) {
	return f.exportFn()
}

func newTestRouter(intake *fakeIntake, approvals *fakeApprovals) *gin.Engine {
	if intake == nil {
		intake = &fakeIntake{}
	}
	if approvals == nil {
		approvals = &fakeApprovals{}
	}
	srv := NewServer(DefaultServerConfig(), intake, approvals, metrics.New(), nopLogger{})
	gin.SetMode(gin.TestMode)
	return srv.Router()
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func do(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp.Error
}

func TestHandlers_HealthAndMetrics(t *testing.T) {
	router := newTestRouter(nil, nil)

	w := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = do(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "invoice_intake_http_requests_total")
}

func TestHandlers_Extract(t *testing.T) {
	intake := &fakeIntake{
		extractFn: func(filename string, content []byte) (*entity.ExtractedInvoice, error) {
			if strings.Contains(filename, "bad") {
				return nil, fmt.Errorf("%w: unsupported content", port.ErrExtractionFailed)
			}
			return &entity.ExtractedInvoice{
				Vendor:     "Contoso Pty Ltd",
				Total:      decimal.RequireFromString("1234.56"),
				Currency:   "AUD",
				Confidence: 0.92,
				RawChars:   len(content),
			}, nil
		},
	}
	router := newTestRouter(intake, nil)

	tests := []struct {
		name     string
		field    string
		filename string
		wantCode int
		wantBody string
	}{
		{name: "ok", field: "file", filename: "inv.pdf", wantCode: http.StatusOK, wantBody: `"total":"1234.56"`},
		{name: "missing file", field: "", wantCode: http.StatusBadRequest, wantBody: "file is required"},
		{name: "extraction failure", field: "file", filename: "bad.bin", wantCode: http.StatusBadRequest, wantBody: "extraction failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.field, tt.filename, []byte("%PDF-1.4"))
			req := httptest.NewRequest(http.MethodPost, "/invoices/extract", body)
			req.Header.Set("Content-Type", contentType)

			w := do(router, req)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestHandlers_Validate(t *testing.T) {
	var got service.ValidateRequest
	intake := &fakeIntake{
		validateFn: func(req service.ValidateRequest) (*rules.Decision, error) {
			got = req
			if req.Confidence > 1 {
				return nil, fmt.Errorf("%w: confidence must be between 0 and 1", service.ErrInvalidInput)
			}
			d := rules.Evaluate(rules.Input{
				Amount:     req.Amount,
				Confidence: req.Confidence,
				Text:       req.Content,
			}, req.Overrides.Apply(rules.DefaultConfig()))
			return &d, nil
		},
	}
	router := newTestRouter(intake, nil)

	t.Run("override applied", func(t *testing.T) {
		payload := `{"amount":"900","confidence":0.95,"content":"INVOICE\nAmount due: 900","amount_threshold":"1000"}`
		w := do(router, httptest.NewRequest(http.MethodPost, "/invoices/validate", strings.NewReader(payload)))
		require.Equal(t, http.StatusOK, w.Code)

		require.NotNil(t, got.Overrides.AmountThreshold)
		assert.True(t, got.Overrides.AmountThreshold.Equal(decimal.NewFromInt(1000)))
		assert.True(t, got.Amount.Equal(decimal.NewFromInt(900)))

		var resp DecisionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Checks[rules.CheckAmountWithinLimit])
		assert.NotNil(t, resp.FailedChecks)
	})

	t.Run("missing amount", func(t *testing.T) {
		w := do(router, httptest.NewRequest(http.MethodPost, "/invoices/validate", strings.NewReader(`{"confidence":0.9}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "amount is required", decodeError(t, w))
	})

	t.Run("malformed json", func(t *testing.T) {
		w := do(router, httptest.NewRequest(http.MethodPost, "/invoices/validate", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("service rejects input", func(t *testing.T) {
		w := do(router, httptest.NewRequest(http.MethodPost, "/invoices/validate", strings.NewReader(`{"amount":"1","confidence":1.5}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w), "confidence")
	})
}

func TestHandlers_Process(t *testing.T) {
	var got service.ProcessRequest
	intake := &fakeIntake{
		processFn: func(req service.ProcessRequest) (*service.ProcessResult, error) {
			got = req
			return &service.ProcessResult{
				Status:     entity.OutcomePendingApproval,
				ApprovalID: "appr-1",
				Message:    "Sent for review",
			}, nil
		},
	}
	router := newTestRouter(intake, nil)

	t.Run("query overrides", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "inv.pdf", []byte("%PDF"))
		req := httptest.NewRequest(http.MethodPost,
			"/invoices/process?confidence_threshold=0.5&amount_threshold=2000&reject_receipt_classification=false", body)
		req.Header.Set("Content-Type", contentType)

		w := do(router, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"approval_id":"appr-1"`)

		assert.Equal(t, "inv.pdf", got.Filename)
		require.NotNil(t, got.Overrides.MinConfidence)
		assert.Equal(t, 0.5, *got.Overrides.MinConfidence)
		require.NotNil(t, got.Overrides.AmountThreshold)
		assert.Equal(t, "2000", got.Overrides.AmountThreshold.String())
		require.NotNil(t, got.Overrides.RejectReceiptClassification)
		assert.False(t, *got.Overrides.RejectReceiptClassification)
		assert.Nil(t, got.Overrides.RequireInvoiceClassification)
	})

	for _, query := range []string{"confidence_threshold=high", "amount_threshold=lots", "require_invoice_classification=maybe"} {
		t.Run("invalid "+query, func(t *testing.T) {
			body, contentType := multipartBody(t, "file", "inv.pdf", []byte("%PDF"))
			req := httptest.NewRequest(http.MethodPost, "/invoices/process?"+query, body)
			req.Header.Set("Content-Type", contentType)

			w := do(router, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandlers_RequestApproval(t *testing.T) {
	intake := &fakeIntake{
		requestApprovalFn: func(inv entity.ExtractedInvoice) (*service.ApprovalRequestResult, error) {
			return &service.ApprovalRequestResult{
				ApprovalID:   "appr-2",
				Status:       entity.StatusPending,
				Notification: &port.NotificationResult{Status: "skipped"},
			}, nil
		},
	}
	router := newTestRouter(intake, nil)

	w := do(router, httptest.NewRequest(http.MethodPost, "/invoices/request-approval",
		strings.NewReader(`{"vendor":"Acme","total":"120.00","currency":"AUD","confidence":0.8}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"approval_id":"appr-2"`)

	w = do(router, httptest.NewRequest(http.MethodPost, "/invoices/request-approval",
		strings.NewReader(`{"vendor":"Acme","total":"-1","confidence":0.8}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Decisions(t *testing.T) {
	decided := map[string]bool{}
	approvals := &fakeApprovals{
		decideFn: func(id, by string, approve bool) (*entity.ApprovalRecord, error) {
			switch id {
			case "missing":
				return nil, fmt.Errorf("get approval: %w", entity.ErrApprovalNotFound)
			case "done":
				return nil, workflow.ErrAlreadyDecided
			}
			decided[id] = approve
			status := entity.StatusRejected
			if approve {
				status = entity.StatusApproved
			}
			return &entity.ApprovalRecord{ID: id, Status: status, DecidedBy: by}, nil
		},
		getFn: func(id string) (*entity.ApprovalRecord, error) {
			if id == "missing" {
				return nil, entity.ErrApprovalNotFound
			}
			return &entity.ApprovalRecord{ID: id, Status: entity.StatusPending}, nil
		},
	}
	router := newTestRouter(nil, approvals)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "get", path: "/invoices/approval/a1", wantCode: http.StatusOK, wantBody: `"status":"pending"`},
		{name: "get missing", path: "/invoices/approval/missing", wantCode: http.StatusNotFound, wantBody: "approval not found"},
		{name: "approve", path: "/invoices/approval/a1/approve?by=alice", wantCode: http.StatusOK, wantBody: `"decided_by":"alice"`},
		{name: "reject", path: "/invoices/approval/a2/reject", wantCode: http.StatusOK, wantBody: `"status":"rejected"`},
		{name: "approve missing", path: "/invoices/approval/missing/approve", wantCode: http.StatusNotFound, wantBody: "approval not found"},
		{name: "conflicting decision", path: "/invoices/approval/done/reject", wantCode: http.StatusConflict, wantBody: "already decided"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}

	assert.Equal(t, map[string]bool{"a1": true, "a2": false}, decided)
}

func TestHandlers_Listings(t *testing.T) {
	var gotStatus string
	approvals := &fakeApprovals{
		listFn: func(status string) ([]*entity.ApprovalRecord, error) {
			gotStatus = status
			if status == "bogus" {
				return nil, fmt.Errorf("%w: unknown status %q", service.ErrInvalidInput, status)
			}
			return nil, nil
		},
		listApprovedFn: func() ([]entity.ApprovedInvoice, error) {
			return []entity.ApprovedInvoice{{ApprovalID: "a1", Vendor: "Acme", Total: "10.00"}}, nil
		},
		exportFn: func() ([]byte, error) {
			return []byte("PK\x03\x04"), nil
		},
	}
	router := newTestRouter(nil, approvals)

	w := do(router, httptest.NewRequest(http.MethodGet, "/invoices/approvals?status=PENDING", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", gotStatus)
	assert.JSONEq(t, `{"approvals":[],"count":0}`, w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/invoices/approvals?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, httptest.NewRequest(http.MethodGet, "/invoices/approvals/approved", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(router, httptest.NewRequest(http.MethodGet, "/invoices/approvals/approved/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "approved_invoices_")
	assert.Equal(t, "PK\x03\x04", w.Body.String())
}

func TestHandlers_InternalErrorIsMasked(t *testing.T) {
	approvals := &fakeApprovals{
		exportFn: func() ([]byte, error) {
			return nil, errors.New("disk on fire")
		},
	}
	router := newTestRouter(nil, approvals)

	w := do(router, httptest.NewRequest(http.MethodGet, "/invoices/approvals/approved/export", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decodeError(t, w))
}
