package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/hookrelay/internal/domain"
	"github.com/shaiso/hookrelay/internal/repo"
	"github.com/shaiso/hookrelay/internal/telemetry"
)

// WorkflowStore — доступ к workflows, нужный шлюзу.
type WorkflowStore interface {
	GetByTriggerKey(ctx context.Context, triggerKey string) (*domain.Workflow, error)
}

// RunStore — доступ к runs, нужный шлюзу.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByIdempotencyKey(ctx context.Context, workflowID int64, key string) (*domain.Run, error)
}

// Enqueuer — публикация job'а в очередь после коммита вставки.
type Enqueuer interface {
	PublishRunDispatch(ctx context.Context, runID, workflowID int64) error
}

// Gateway принимает webhook-доставки: дедуплицирует, сохраняет run
// и передаёт его в очередь.
//
// Контракт: на одну доставку — не более одного нового run и не более
// одного enqueue. Повторная доставка того же события возвращает
// существующий run, а не ошибку.
type Gateway struct {
	workflows WorkflowStore
	runs      RunStore
	queue     Enqueuer
	logger    *slog.Logger
}

// Config — конфигурация Gateway.
type Config struct {
	Workflows WorkflowStore
	Runs      RunStore

	// Queue опционален: без очереди runs остаются в queued
	// и подхватываются sweep'ом воркера.
	Queue Enqueuer

	Logger *slog.Logger
}

// New создаёт новый Gateway.
func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		workflows: cfg.Workflows,
		runs:      cfg.Runs,
		queue:     cfg.Queue,
		logger:    logger,
	}
}

// Admission — результат приёма доставки.
type Admission struct {
	// RunID — созданный либо существующий run.
	RunID int64

	// Status — текущий статус run на момент ответа.
	Status domain.RunStatus

	// Deduplicated — true, если доставка схлопнулась в существующий run.
	Deduplicated bool
}

// Admit принимает одну webhook-доставку.
//
// Алгоритм:
//  1. Резолвим trigger_key в workflow (ErrUnknownTrigger).
//  2. Проверяем, что тело — JSON-объект (ErrInvalidPayload).
//  3. Вычисляем эффективный idempotency key: заголовок от клиента
//     либо sha256 от raw body — повторные доставки одного физического
//     payload'а схлопываются и без кооперации клиента.
//  4. Редактируем чувствительные входящие заголовки.
//  5. Вставляем run со статусом queued; при конфликте уникальности
//     читаем существующий run той же пары и возвращаем его.
//  6. После закоммиченной вставки публикуем job. Ошибка публикации
//     не откатывает приём: run существует и будет подхвачен sweep'ом.
func (g *Gateway) Admit(ctx context.Context, triggerKey string, body []byte, headers map[string]string, idempotencyKey string) (*Admission, error) {
	workflow, err := g.workflows.GetByTriggerKey(ctx, triggerKey)
	if errors.Is(err, repo.ErrNotFound) {
		telemetry.WebhooksRejected.WithLabelValues("unknown_trigger").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrigger, triggerKey)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve trigger key: %w", err)
	}

	payload, err := parseObjectPayload(body)
	if err != nil {
		telemetry.WebhooksRejected.WithLabelValues("invalid_payload").Inc()
		return nil, err
	}

	key := idempotencyKey
	if key == "" {
		sum := sha256.Sum256(body)
		key = hex.EncodeToString(sum[:])
	}

	run := &domain.Run{
		WorkflowID:     workflow.ID,
		Status:         domain.RunStatusQueued,
		IdempotencyKey: key,
		TriggerPayload: payload,
		TriggerHeaders: RedactHeaders(headers),
	}

	if err := g.runs.Create(ctx, run); err != nil {
		if !errors.Is(err, repo.ErrAlreadyExists) {
			return nil, fmt.Errorf("create run: %w", err)
		}

		// Повторная доставка — возвращаем существующий run той же пары.
		existing, err := g.runs.GetByIdempotencyKey(ctx, workflow.ID, key)
		if errors.Is(err, repo.ErrNotFound) {
			telemetry.WebhooksRejected.WithLabelValues("duplicate_conflict").Inc()
			return nil, ErrDuplicateConflict
		}
		if err != nil {
			return nil, fmt.Errorf("read back duplicate run: %w", err)
		}

		telemetry.WebhooksDeduplicated.Inc()
		g.logger.Info("webhook deduplicated",
			"trigger_key", triggerKey,
			"workflow_id", workflow.ID,
			"run_id", existing.ID,
			"status", existing.Status,
		)
		return &Admission{RunID: existing.ID, Status: existing.Status, Deduplicated: true}, nil
	}

	if g.queue != nil {
		if err := g.queue.PublishRunDispatch(ctx, run.ID, workflow.ID); err != nil {
			// Вставка закоммичена — run существует и будет подхвачен
			// sweep'ом воркера, приём не откатываем.
			g.logger.Warn("failed to enqueue run after commit",
				"run_id", run.ID,
				"workflow_id", workflow.ID,
				"error", err,
			)
		}
	}

	telemetry.WebhooksAccepted.Inc()
	g.logger.Info("webhook accepted",
		"trigger_key", triggerKey,
		"workflow_id", workflow.ID,
		"run_id", run.ID,
	)
	return &Admission{RunID: run.ID, Status: run.Status}, nil
}

// parseObjectPayload парсит body и требует JSON-объект в корне.
func parseObjectPayload(body []byte) (map[string]any, error) {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: payload must be valid JSON", ErrInvalidPayload)
	}

	payload, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload root must be a JSON object", ErrInvalidPayload)
	}
	return payload, nil
}
