package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/hookrelay/internal/domain"
)

// WorkflowRepo — репозиторий для работы с workflows.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create создаёт новый workflow.
// Возвращает ErrAlreadyExists при конфликте trigger_key.
func (r *WorkflowRepo) Create(ctx context.Context, workflow *domain.Workflow) error {
	headersJSON, err := json.Marshal(workflow.ActionHeaders)
	if err != nil {
		return fmt.Errorf("marshal action headers: %w", err)
	}

	query := `
		INSERT INTO workflows (name, trigger_key, action_url, action_method, action_headers, timeout_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = r.pool.QueryRow(ctx, query,
		workflow.Name,
		workflow.TriggerKey,
		workflow.ActionURL,
		workflow.ActionMethod,
		headersJSON,
		workflow.TimeoutSeconds,
	).Scan(&workflow.ID, &workflow.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	query := `
		SELECT id, name, trigger_key, action_url, action_method, action_headers, timeout_seconds, created_at
		FROM workflows
		WHERE id = $1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// GetByTriggerKey возвращает workflow по trigger_key.
// Это резолвинг на пути приёма webhook-доставки.
func (r *WorkflowRepo) GetByTriggerKey(ctx context.Context, triggerKey string) (*domain.Workflow, error) {
	query := `
		SELECT id, name, trigger_key, action_url, action_method, action_headers, timeout_seconds, created_at
		FROM workflows
		WHERE trigger_key = $1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, triggerKey))
}

// List возвращает все workflows, новее — выше.
func (r *WorkflowRepo) List(ctx context.Context) ([]domain.Workflow, error) {
	query := `
		SELECT id, name, trigger_key, action_url, action_method, action_headers, timeout_seconds, created_at
		FROM workflows
		ORDER BY id DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		w, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}
	return workflows, rows.Err()
}

// scanWorkflow сканирует одну строку в Workflow.
func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var w domain.Workflow
	var headersJSON []byte

	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.TriggerKey,
		&w.ActionURL,
		&w.ActionMethod,
		&headersJSON,
		&w.TimeoutSeconds,
		&w.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if headersJSON != nil {
		if err := json.Unmarshal(headersJSON, &w.ActionHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal action headers: %w", err)
		}
	}

	return &w, nil
}
