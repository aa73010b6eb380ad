package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/hookrelay/internal/domain"
	"github.com/shaiso/hookrelay/internal/mq"
	"github.com/shaiso/hookrelay/internal/repo"
)

// --- Fakes ---

type fakeStore struct {
	execs    map[int64]*domain.RunExecution
	history  map[int64][]domain.RunStatus
	lastErr  map[int64]string
	staleIDs []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		execs:   make(map[int64]*domain.RunExecution),
		history: make(map[int64][]domain.RunStatus),
		lastErr: make(map[int64]string),
	}
}

func (f *fakeStore) addRun(id int64, status domain.RunStatus) {
	f.execs[id] = &domain.RunExecution{
		RunID:          id,
		WorkflowID:     1,
		Status:         status,
		TriggerPayload: map[string]any{"k": "v"},
		ActionURL:      "https://example.com/act",
		ActionMethod:   "POST",
		TimeoutSeconds: 5,
	}
}

func (f *fakeStore) GetForExecution(_ context.Context, runID int64) (*domain.RunExecution, error) {
	exec, ok := f.execs[runID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *exec
	return &copied, nil
}

func (f *fakeStore) ClaimRunning(_ context.Context, runID int64) (bool, error) {
	exec, ok := f.execs[runID]
	if !ok || !exec.Status.IsProcessable() {
		return false, nil
	}
	exec.Status = domain.RunStatusRunning
	f.history[runID] = append(f.history[runID], domain.RunStatusRunning)
	return true, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, runID int64, status domain.RunStatus, errMsg string) error {
	exec, ok := f.execs[runID]
	if !ok {
		return repo.ErrNotFound
	}
	exec.Status = status
	f.history[runID] = append(f.history[runID], status)
	f.lastErr[runID] = errMsg
	return nil
}

func (f *fakeStore) ListStaleQueued(_ context.Context, _ time.Duration, _ int) ([]int64, error) {
	return f.staleIDs, nil
}

type fakeInvoker struct {
	// results потребляются по одной на каждый вызов; последняя повторяется
	results []error
	calls   int
}

func (f *fakeInvoker) Invoke(_ context.Context, _ Action) (int, error) {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	err := f.results[i]
	if err == nil {
		return http.StatusOK, nil
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.StatusCode, err
	}
	return 0, err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(store *fakeStore, inv *fakeInvoker) *Worker {
	return New(Config{
		Runs:        store,
		Invoker:     inv,
		MaxAttempts: 3,
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  100 * time.Millisecond,
		Logger:      quietLogger(),
	})
}

func transient(status int) error {
	return &ActionError{StatusCode: status, Transient: true}
}

func permanent(status int) error {
	return &ActionError{StatusCode: status, Transient: false}
}

// --- processRun Tests ---

func TestProcessRun_SucceedsFirstAttempt(t *testing.T) {
	store := newFakeStore()
	store.addRun(1, domain.RunStatusQueued)
	inv := &fakeInvoker{results: []error{nil}}
	w := newTestWorker(store, inv)

	if err := w.processRun(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inv.calls != 1 {
		t.Errorf("expected 1 invocation, got %d", inv.calls)
	}
	if store.execs[1].Status != domain.RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", store.execs[1].Status)
	}
	if store.lastErr[1] != "" {
		t.Errorf("error message should be cleared, got %q", store.lastErr[1])
	}

	want := []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusSucceeded}
	if got := store.history[1]; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected transitions %v, got %v", want, got)
	}
}

func TestProcessRun_RecoversAfterTransientFailures(t *testing.T) {
	// 503 на попытках 1–2, 200 на попытке 3: succeeded,
	// сон ≈ base, затем ≈ 2*base между попытками
	store := newFakeStore()
	store.addRun(1, domain.RunStatusQueued)
	inv := &fakeInvoker{results: []error{transient(503), transient(503), nil}}
	w := newTestWorker(store, inv)

	start := time.Now()
	if err := w.processRun(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	if inv.calls != 3 {
		t.Errorf("expected 3 invocations, got %d", inv.calls)
	}
	if store.execs[1].Status != domain.RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", store.execs[1].Status)
	}
	// base + 2*base = 30ms минимум
	if elapsed < 30*time.Millisecond {
		t.Errorf("expected backoff sleeps of ~10ms and ~20ms, elapsed %v", elapsed)
	}

	want := []domain.RunStatus{
		domain.RunStatusRunning,
		domain.RunStatusRetrying,
		domain.RunStatusRetrying,
		domain.RunStatusSucceeded,
	}
	got := store.history[1]
	if len(got) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, got)
		}
	}
}

func TestProcessRun_ExhaustionDeadLetters(t *testing.T) {
	store := newFakeStore()
	store.addRun(1, domain.RunStatusQueued)
	inv := &fakeInvoker{results: []error{transient(503)}}
	w := newTestWorker(store, inv)

	if err := w.processRun(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ровно max_attempts вызовов downstream
	if inv.calls != 3 {
		t.Errorf("expected exactly 3 invocations, got %d", inv.calls)
	}
	if store.execs[1].Status != domain.RunStatusDeadLetter {
		t.Errorf("expected dead_letter, got %s", store.execs[1].Status)
	}
	if !strings.Contains(store.lastErr[1], "transient downstream status=503") {
		t.Errorf("last error message should be retained, got %q", store.lastErr[1])
	}
}

func TestProcessRun_NonRetryableDeadLettersImmediately(t *testing.T) {
	// Решение открытого вопроса политики retry: non-retryable исход
	// (404) не тратит бюджет попыток и сразу уводит run в dead_letter.
	store := newFakeStore()
	store.addRun(1, domain.RunStatusQueued)
	inv := &fakeInvoker{results: []error{permanent(404)}}
	w := newTestWorker(store, inv)

	if err := w.processRun(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inv.calls != 1 {
		t.Errorf("expected single invocation, got %d", inv.calls)
	}
	if store.execs[1].Status != domain.RunStatusDeadLetter {
		t.Errorf("expected dead_letter, got %s", store.execs[1].Status)
	}
	if !strings.Contains(store.lastErr[1], "non-retryable downstream status=404") {
		t.Errorf("error message should carry the non-retryable label, got %q", store.lastErr[1])
	}
}

func TestProcessRun_SkipsTerminalRun(t *testing.T) {
	// Повторная доставка job'а для завершённого run — ноль вызовов downstream
	store := newFakeStore()
	store.addRun(1, domain.RunStatusSucceeded)
	inv := &fakeInvoker{results: []error{nil}}
	w := newTestWorker(store, inv)

	if err := w.processRun(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inv.calls != 0 {
		t.Errorf("terminal run must not be re-executed, got %d invocations", inv.calls)
	}
	if store.execs[1].Status != domain.RunStatusSucceeded {
		t.Errorf("terminal status must not change, got %s", store.execs[1].Status)
	}
}

func TestProcessRun_SkipsRunningRun(t *testing.T) {
	// Конкурентный pickup: run уже running у другого воркера
	store := newFakeStore()
	store.addRun(1, domain.RunStatusRunning)
	inv := &fakeInvoker{results: []error{nil}}
	w := newTestWorker(store, inv)

	if err := w.processRun(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.calls != 0 {
		t.Errorf("claimed run must not be re-executed, got %d invocations", inv.calls)
	}
}

func TestProcessRun_RetryingRunIsProcessable(t *testing.T) {
	store := newFakeStore()
	store.addRun(1, domain.RunStatusRetrying)
	inv := &fakeInvoker{results: []error{nil}}
	w := newTestWorker(store, inv)

	if err := w.processRun(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.execs[1].Status != domain.RunStatusSucceeded {
		t.Errorf("expected succeeded, got %s", store.execs[1].Status)
	}
}

func TestProcessRun_MissingRunIsDropped(t *testing.T) {
	store := newFakeStore()
	inv := &fakeInvoker{results: []error{nil}}
	w := newTestWorker(store, inv)

	if err := w.processRun(context.Background(), 99); err != nil {
		t.Fatalf("missing run should be dropped without error, got %v", err)
	}
	if inv.calls != 0 {
		t.Errorf("expected no invocations, got %d", inv.calls)
	}
}

// --- decodeJob Tests ---

func TestDecodeJob(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int64
		wantErr bool
	}{
		{"valid", `{"run_id": 42, "workflow_id": 7}`, 42, false},
		{"valid without workflow", `{"run_id": 1}`, 1, false},
		{"missing run_id", `{"workflow_id": 7}`, 0, true},
		{"zero run_id", `{"run_id": 0}`, 0, true},
		{"negative run_id", `{"run_id": -5}`, 0, true},
		{"invalid json", `{"run_id": `, 0, true},
		{"wrong type", `{"run_id": "abc"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &mq.Message{Payload: json.RawMessage(tt.payload)}
			got, err := decodeJob(msg)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidJob) {
					t.Fatalf("expected ErrInvalidJob, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected run id %d, got %d", tt.want, got)
			}
		})
	}
}

// --- Sweep Tests ---

func TestMaybeSweep_ProcessesStaleQueuedRuns(t *testing.T) {
	store := newFakeStore()
	store.addRun(1, domain.RunStatusQueued)
	store.addRun(2, domain.RunStatusQueued)
	store.staleIDs = []int64{1, 2}
	inv := &fakeInvoker{results: []error{nil}}
	w := newTestWorker(store, inv)

	w.maybeSweep(context.Background())

	if inv.calls != 2 {
		t.Errorf("expected 2 invocations, got %d", inv.calls)
	}
	for _, id := range []int64{1, 2} {
		if store.execs[id].Status != domain.RunStatusSucceeded {
			t.Errorf("run %d: expected succeeded, got %s", id, store.execs[id].Status)
		}
	}
}

func TestMaybeSweep_ThrottledByInterval(t *testing.T) {
	store := newFakeStore()
	store.addRun(1, domain.RunStatusQueued)
	store.staleIDs = []int64{1}
	inv := &fakeInvoker{results: []error{nil}}
	w := newTestWorker(store, inv)

	w.maybeSweep(context.Background())
	// Второй вызов сразу за первым — внутри sweepInterval, должен быть no-op
	w.maybeSweep(context.Background())

	if inv.calls != 1 {
		t.Errorf("expected sweep to run once, got %d invocations", inv.calls)
	}
}

// --- Worker loop Tests ---

func TestWorkerRun_StopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	inv := &fakeInvoker{results: []error{nil}}
	w := New(Config{
		Runs:        store,
		Invoker:     inv,
		PollTimeout: 10 * time.Millisecond,
		Logger:      quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("graceful shutdown should not error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{})

	if w.maxAttempts != defaultMaxAttempts {
		t.Errorf("expected default max attempts %d, got %d", defaultMaxAttempts, w.maxAttempts)
	}
	if w.backoffBase != defaultBackoffBase {
		t.Errorf("expected default backoff base %v, got %v", defaultBackoffBase, w.backoffBase)
	}
	if w.backoffCap != defaultBackoffCap {
		t.Errorf("expected default backoff cap %v, got %v", defaultBackoffCap, w.backoffCap)
	}
	if w.invoker == nil {
		t.Error("invoker should default to HTTPInvoker")
	}
}
