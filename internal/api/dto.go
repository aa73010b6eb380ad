package api

import (
	"time"

	"github.com/shaiso/hookrelay/internal/domain"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на регистрацию workflow.
type CreateWorkflowRequest struct {
	Name           string            `json:"name"`
	TriggerKey     string            `json:"trigger_key"`
	ActionURL      string            `json:"action_url"`
	ActionMethod   string            `json:"action_method,omitempty"`
	ActionHeaders  map[string]string `json:"action_headers,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
}

// ToDomain конвертирует запрос в domain.Workflow с дефолтами.
func (req CreateWorkflowRequest) ToDomain() *domain.Workflow {
	method := req.ActionMethod
	if method == "" {
		method = "POST"
	}

	timeout := domain.DefaultTimeoutSeconds
	if req.TimeoutSeconds != nil {
		timeout = *req.TimeoutSeconds
	}

	return &domain.Workflow{
		Name:           req.Name,
		TriggerKey:     req.TriggerKey,
		ActionURL:      req.ActionURL,
		ActionMethod:   method,
		ActionHeaders:  req.ActionHeaders,
		TimeoutSeconds: timeout,
	}
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	TriggerKey     string            `json:"trigger_key"`
	ActionURL      string            `json:"action_url"`
	ActionMethod   string            `json:"action_method"`
	ActionHeaders  map[string]string `json:"action_headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	CreatedAt      time.Time         `json:"created_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(w domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:             w.ID,
		Name:           w.Name,
		TriggerKey:     w.TriggerKey,
		ActionURL:      w.ActionURL,
		ActionMethod:   w.ActionMethod,
		ActionHeaders:  w.ActionHeaders,
		TimeoutSeconds: w.TimeoutSeconds,
		CreatedAt:      w.CreatedAt,
	}
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID             int64             `json:"id"`
	WorkflowID     int64             `json:"workflow_id"`
	Status         string            `json:"status"`
	IdempotencyKey string            `json:"idempotency_key"`
	TriggerPayload map[string]any    `json:"trigger_payload,omitempty"`
	TriggerHeaders map[string]string `json:"trigger_headers,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:             r.ID,
		WorkflowID:     r.WorkflowID,
		Status:         string(r.Status),
		IdempotencyKey: r.IdempotencyKey,
		TriggerPayload: r.TriggerPayload,
		TriggerHeaders: r.TriggerHeaders,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// Webhook DTOs

// TriggerAcceptedResponse — ответ публичного webhook-эндпоинта.
// Плоская форма без envelope: это контракт для внешних систем.
type TriggerAcceptedResponse struct {
	RunID        int64  `json:"run_id"`
	Status       string `json:"status"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}
