package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/domain/event"
	"github.com/garyjia/invoice-intake/internal/domain/rules"
)

// mockApprovalRepo keeps records in a map unless a func field overrides the call
type mockApprovalRepo struct {
	mu                 sync.Mutex
	records            map[string]*entity.ApprovalRecord
	createFunc         func(ctx context.Context, record *entity.ApprovalRecord) error
	getByIDFunc        func(ctx context.Context, id string) (*entity.ApprovalRecord, error)
	updateDecisionFunc func(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) error
	listFunc           func(ctx context.Context, status string) ([]*entity.ApprovalRecord, error)
	updateCalls        int
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{records: make(map[string]*entity.ApprovalRecord)}
}

func (m *mockApprovalRepo) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *mockApprovalRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockApprovalRepo) UpdateDecision(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) error {
	m.mu.Lock()
	m.updateCalls++
	m.mu.Unlock()
	if m.updateDecisionFunc != nil {
		return m.updateDecisionFunc(ctx, id, status, decidedBy, decidedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	r.Status = status
	r.DecidedBy = decidedBy
	r.DecidedAt = &decidedAt
	return nil
}

func (m *mockApprovalRepo) List(ctx context.Context, status string) ([]*entity.ApprovalRecord, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.ApprovalRecord{}
	for _, r := range m.records {
		if status == "" || r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, filename string, content []byte) (*entity.ExtractedInvoice, error)
}

func (m *mockExtractor) Extract(ctx context.Context, filename string, content []byte) (*entity.ExtractedInvoice, error) {
	return m.extractFunc(ctx, filename, content)
}

type mockNotifier struct {
	sendFunc func(ctx context.Context, req port.ReviewRequest) (*port.NotificationResult, error)
	sent     []port.ReviewRequest
}

func (m *mockNotifier) SendReviewCard(ctx context.Context, req port.ReviewRequest) (*port.NotificationResult, error) {
	m.sent = append(m.sent, req)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, req)
	}
	return &port.NotificationResult{Status: port.NotificationSent, MessageID: "om_1"}, nil
}

type mockPublisher struct {
	publishFunc func(ctx context.Context, e event.Event) error
	events      []event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, e event.Event) error {
	m.events = append(m.events, e)
	if m.publishFunc != nil {
		return m.publishFunc(ctx, e)
	}
	return nil
}

func (m *mockPublisher) types() []event.Type {
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType())
	}
	return out
}

type mockStorage struct {
	saved map[string][]byte
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return m.saved[path], nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.saved[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.saved, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/data/" + relativePath
}

type mockRecorder struct {
	decisions []rules.Decision
	statuses  []string
}

func (m *mockRecorder) RecordDecision(d rules.Decision) { m.decisions = append(m.decisions, d) }
func (m *mockRecorder) RecordStatus(status string)      { m.statuses = append(m.statuses, status) }

type mockExporter struct {
	rows []entity.ApprovedInvoice
}

func (m *mockExporter) ExportApproved(ctx context.Context, rows []entity.ApprovedInvoice) ([]byte, error) {
	m.rows = rows
	return []byte("xlsx"), nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
