package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/hookrelay/internal/domain"
)

// RunRepo — репозиторий для работы с runs.
//
// RunRepo — единственный писатель статуса run. Переход queued/retrying →
// running выполняется атомарным conditional update (ClaimRunning), поэтому
// конкурентные воркеры не могут выполнить один run дважды.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт новый run в статусе queued.
// Возвращает ErrAlreadyExists при нарушении уникальности
// (workflow_id, idempotency_key) — сигнал повторной доставки.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	payloadJSON, err := json.Marshal(run.TriggerPayload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}
	headersJSON, err := json.Marshal(run.TriggerHeaders)
	if err != nil {
		return fmt.Errorf("marshal trigger headers: %w", err)
	}

	query := `
		INSERT INTO runs (workflow_id, status, idempotency_key, trigger_payload, trigger_headers)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		run.WorkflowID,
		run.Status,
		run.IdempotencyKey,
		payloadJSON,
		headersJSON,
	).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id int64) (*domain.Run, error) {
	query := runSelect + ` WHERE id = $1`
	return r.scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает run по паре (workflow_id, idempotency_key).
// Read-back путь дедупликации после конфликта вставки.
func (r *RunRepo) GetByIdempotencyKey(ctx context.Context, workflowID int64, key string) (*domain.Run, error) {
	query := runSelect + ` WHERE workflow_id = $1 AND idempotency_key = $2`
	return r.scanRun(r.pool.QueryRow(ctx, query, workflowID, key))
}

// List возвращает runs с фильтрацией, новее — выше.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := runSelect + `
		WHERE ($1::bigint IS NULL OR workflow_id = $1)
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, filter.WorkflowID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetForExecution возвращает run, соединённый с action-конфигурацией
// его workflow. Workflow всегда берётся из join'а — workflow_id из
// queue job не является доверенным.
func (r *RunRepo) GetForExecution(ctx context.Context, runID int64) (*domain.RunExecution, error) {
	query := `
		SELECT r.id, r.workflow_id, r.status, r.trigger_payload,
		       w.action_url, w.action_method, w.action_headers, w.timeout_seconds
		FROM runs r
		JOIN workflows w ON w.id = r.workflow_id
		WHERE r.id = $1
	`
	var exec domain.RunExecution
	var payloadJSON, headersJSON []byte

	err := r.pool.QueryRow(ctx, query, runID).Scan(
		&exec.RunID,
		&exec.WorkflowID,
		&exec.Status,
		&payloadJSON,
		&exec.ActionURL,
		&exec.ActionMethod,
		&headersJSON,
		&exec.TimeoutSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run for execution: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &exec.TriggerPayload); err != nil {
			return nil, fmt.Errorf("unmarshal trigger payload: %w", err)
		}
	}
	if headersJSON != nil {
		if err := json.Unmarshal(headersJSON, &exec.ActionHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal action headers: %w", err)
		}
	}

	return &exec, nil
}

// ClaimRunning атомарно переводит run в running, только если он сейчас
// queued или retrying. Возвращает false, если ни одна строка не изменена —
// run уже взят другим воркером или терминален, обработку нужно пропустить.
func (r *RunRepo) ClaimRunning(ctx context.Context, runID int64) (bool, error) {
	query := `
		UPDATE runs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`
	result, err := r.pool.Exec(ctx, query,
		runID,
		domain.RunStatusRunning,
		domain.RunStatusQueued,
		domain.RunStatusRetrying,
	)
	if err != nil {
		return false, fmt.Errorf("claim run: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// UpdateStatus обновляет статус и сообщение об ошибке run.
func (r *RunRepo) UpdateStatus(ctx context.Context, runID int64, status domain.RunStatus, errMsg string) error {
	query := `
		UPDATE runs
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, runID, status, nullString(errMsg))
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStaleQueued возвращает ID runs, застрявших в queued дольше olderThan.
// Это зазор "insert закоммичен, enqueue не случился": очередь и БД —
// разные системы без общей транзакции.
func (r *RunRepo) ListStaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error) {
	query := `
		SELECT id
		FROM runs
		WHERE status = $1 AND updated_at < NOW() - $2::interval
		ORDER BY id ASC
		LIMIT $3
	`
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	rows, err := r.pool.Query(ctx, query, domain.RunStatusQueued, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale queued runs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	WorkflowID *int64
	Limit      int
}

const runSelect = `
	SELECT id, workflow_id, status, idempotency_key, trigger_payload,
	       trigger_headers, error_message, created_at, updated_at
	FROM runs
`

// scanRun сканирует одну строку в Run.
func (r *RunRepo) scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var payloadJSON, headersJSON []byte
	var errMsg *string

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.Status,
		&run.IdempotencyKey,
		&payloadJSON,
		&headersJSON,
		&errMsg,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &run.TriggerPayload); err != nil {
			return nil, fmt.Errorf("unmarshal trigger payload: %w", err)
		}
	}
	if headersJSON != nil {
		if err := json.Unmarshal(headersJSON, &run.TriggerHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal trigger headers: %w", err)
		}
	}
	if errMsg != nil {
		run.ErrorMessage = *errMsg
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
