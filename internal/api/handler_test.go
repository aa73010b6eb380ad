package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shaiso/hookrelay/internal/domain"
	"github.com/shaiso/hookrelay/internal/ingest"
	"github.com/shaiso/hookrelay/internal/repo"
)

// --- Fakes ---

type fakeWorkflowStore struct {
	workflows map[int64]*domain.Workflow
	nextID    int64
	byTrigger map[string]int64
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		workflows: make(map[int64]*domain.Workflow),
		byTrigger: make(map[string]int64),
		nextID:    1,
	}
}

func (f *fakeWorkflowStore) Create(_ context.Context, workflow *domain.Workflow) error {
	if _, exists := f.byTrigger[workflow.TriggerKey]; exists {
		return repo.ErrAlreadyExists
	}
	workflow.ID = f.nextID
	f.nextID++
	f.workflows[workflow.ID] = workflow
	f.byTrigger[workflow.TriggerKey] = workflow.ID
	return nil
}

func (f *fakeWorkflowStore) GetByID(_ context.Context, id int64) (*domain.Workflow, error) {
	workflow, ok := f.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return workflow, nil
}

func (f *fakeWorkflowStore) List(_ context.Context) ([]domain.Workflow, error) {
	result := make([]domain.Workflow, 0, len(f.workflows))
	for _, w := range f.workflows {
		result = append(result, *w)
	}
	return result, nil
}

type fakeRunStore struct {
	runs       map[int64]*domain.Run
	lastFilter repo.RunFilter
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[int64]*domain.Run)}
}

func (f *fakeRunStore) GetByID(_ context.Context, id int64) (*domain.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunStore) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	f.lastFilter = filter
	result := make([]domain.Run, 0, len(f.runs))
	for _, run := range f.runs {
		if filter.WorkflowID != nil && run.WorkflowID != *filter.WorkflowID {
			continue
		}
		result = append(result, *run)
	}
	return result, nil
}

type fakeAdmitter struct {
	admission *ingest.Admission
	err       error

	gotTriggerKey     string
	gotBody           []byte
	gotHeaders        map[string]string
	gotIdempotencyKey string
}

func (f *fakeAdmitter) Admit(_ context.Context, triggerKey string, body []byte, headers map[string]string, idempotencyKey string) (*ingest.Admission, error) {
	f.gotTriggerKey = triggerKey
	f.gotBody = body
	f.gotHeaders = headers
	f.gotIdempotencyKey = idempotencyKey
	if f.err != nil {
		return nil, f.err
	}
	return f.admission, nil
}

func newTestServer(workflows *fakeWorkflowStore, runs *fakeRunStore, gateway *fakeAdmitter) *httptest.Server {
	h := NewHandler(Config{
		Workflows: workflows,
		Runs:      runs,
		Gateway:   gateway,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// --- Workflow handler Tests ---

func TestCreateWorkflow(t *testing.T) {
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), &fakeAdmitter{})
	defer server.Close()

	body := `{
		"name": "notify-billing",
		"trigger_key": "billing-events",
		"action_url": "https://billing.internal/hooks",
		"action_headers": {"Authorization": "Bearer tok"}
	}`
	resp, err := http.Post(server.URL+"/api/v1/workflows", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		Data WorkflowResponse `json:"data"`
	}
	decodeBody(t, resp, &result)

	if result.Data.ID != 1 {
		t.Errorf("expected workflow id 1, got %d", result.Data.ID)
	}
	if result.Data.ActionMethod != "POST" {
		t.Errorf("expected default method POST, got %q", result.Data.ActionMethod)
	}
	if result.Data.TimeoutSeconds != domain.DefaultTimeoutSeconds {
		t.Errorf("expected default timeout, got %d", result.Data.TimeoutSeconds)
	}
}

func TestCreateWorkflow_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"name": `},
		{"missing name", `{"trigger_key": "billing-events", "action_url": "https://x.io/h"}`},
		{"short trigger key", `{"name": "n", "trigger_key": "ab", "action_url": "https://x.io/h"}`},
		{"bad url scheme", `{"name": "n", "trigger_key": "billing-events", "action_url": "ftp://x.io/h"}`},
		{"bad method", `{"name": "n", "trigger_key": "billing-events", "action_url": "https://x.io/h", "action_method": "GET"}`},
		{"timeout too large", `{"name": "n", "trigger_key": "billing-events", "action_url": "https://x.io/h", "timeout_seconds": 31}`},
	}

	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), &fakeAdmitter{})
	defer server.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/api/v1/workflows", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateWorkflow_DuplicateTriggerKey(t *testing.T) {
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), &fakeAdmitter{})
	defer server.Close()

	body := `{"name": "n", "trigger_key": "billing-events", "action_url": "https://x.io/h"}`

	resp, err := http.Post(server.URL+"/api/v1/workflows", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/api/v1/workflows", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for duplicate trigger_key, got %d", resp.StatusCode)
	}
}

func TestGetWorkflow_NotFound(t *testing.T) {
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), &fakeAdmitter{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/workflows/99")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetWorkflow_InvalidID(t *testing.T) {
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), &fakeAdmitter{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/workflows/abc")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// --- Run handler Tests ---

func TestListRuns_DefaultLimit(t *testing.T) {
	runs := newFakeRunStore()
	server := newTestServer(newFakeWorkflowStore(), runs, &fakeAdmitter{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/runs")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if runs.lastFilter.Limit != defaultListLimit {
		t.Errorf("expected default limit %d, got %d", defaultListLimit, runs.lastFilter.Limit)
	}
	if runs.lastFilter.WorkflowID != nil {
		t.Error("workflow filter should be empty by default")
	}
}

func TestListRuns_FilterAndLimit(t *testing.T) {
	runs := newFakeRunStore()
	runs.runs[1] = &domain.Run{ID: 1, WorkflowID: 5, Status: domain.RunStatusQueued}
	runs.runs[2] = &domain.Run{ID: 2, WorkflowID: 7, Status: domain.RunStatusSucceeded}
	server := newTestServer(newFakeWorkflowStore(), runs, &fakeAdmitter{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/runs?workflow_id=5&limit=10")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		Data []RunResponse `json:"data"`
	}
	decodeBody(t, resp, &result)

	if len(result.Data) != 1 || result.Data[0].WorkflowID != 5 {
		t.Errorf("expected single run for workflow 5, got %+v", result.Data)
	}
	if runs.lastFilter.Limit != 10 {
		t.Errorf("expected limit 10, got %d", runs.lastFilter.Limit)
	}
}

func TestListRuns_LimitOutOfRange(t *testing.T) {
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), &fakeAdmitter{})
	defer server.Close()

	for _, limit := range []string{"0", "201", "-1", "abc"} {
		resp, err := http.Get(server.URL + "/api/v1/runs?limit=" + limit)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, resp.StatusCode)
		}
	}
}

func TestGetRun_NotFound(t *testing.T) {
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), &fakeAdmitter{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/runs/42")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

// --- Webhook handler Tests ---

func TestHandleWebhook_Accepted(t *testing.T) {
	gateway := &fakeAdmitter{
		admission: &ingest.Admission{RunID: 7, Status: domain.RunStatusQueued},
	}
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), gateway)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/webhooks/billing-events", strings.NewReader(`{"event": "paid"}`))
	req.Header.Set("X-Idempotency-Key", "evt-123")
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var result TriggerAcceptedResponse
	decodeBody(t, resp, &result)
	if result.RunID != 7 {
		t.Errorf("expected run_id 7, got %d", result.RunID)
	}
	if result.Status != "queued" {
		t.Errorf("expected status queued, got %q", result.Status)
	}

	if gateway.gotTriggerKey != "billing-events" {
		t.Errorf("unexpected trigger key %q", gateway.gotTriggerKey)
	}
	if gateway.gotIdempotencyKey != "evt-123" {
		t.Errorf("unexpected idempotency key %q", gateway.gotIdempotencyKey)
	}
	if string(gateway.gotBody) != `{"event": "paid"}` {
		t.Errorf("unexpected body %q", gateway.gotBody)
	}
	if gateway.gotHeaders["Authorization"] != "Bearer secret" {
		t.Errorf("expected Authorization header to be forwarded, got %v", gateway.gotHeaders)
	}
}

func TestHandleWebhook_Deduplicated(t *testing.T) {
	gateway := &fakeAdmitter{
		admission: &ingest.Admission{RunID: 3, Status: domain.RunStatusSucceeded, Deduplicated: true},
	}
	server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), gateway)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/webhooks/billing-events", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Повтор неотличим от первого приёма — тот же 202
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var result TriggerAcceptedResponse
	decodeBody(t, resp, &result)
	if !result.Deduplicated {
		t.Error("expected deduplicated flag")
	}
	if result.RunID != 3 {
		t.Errorf("expected existing run_id 3, got %d", result.RunID)
	}
}

func TestHandleWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown trigger", ingest.ErrUnknownTrigger, http.StatusNotFound},
		{"invalid payload", ingest.ErrInvalidPayload, http.StatusBadRequest},
		{"duplicate conflict", ingest.ErrDuplicateConflict, http.StatusConflict},
		{"storage failure", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &fakeAdmitter{err: tt.err}
			server := newTestServer(newFakeWorkflowStore(), newFakeRunStore(), gateway)
			defer server.Close()

			resp, err := http.Post(server.URL+"/api/v1/webhooks/billing-events", "application/json", strings.NewReader(`{}`))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}
