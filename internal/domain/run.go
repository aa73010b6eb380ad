package domain

import "time"

// Run — одна попытка выполнения workflow для одного логического события.
//
// Run создаётся шлюзом приёма ровно один раз на уникальную пару
// (workflow_id, idempotency_key) — это единственный механизм дедупликации
// повторных доставок. Статус мутирует только воркер, и только вперёд
// по state machine (см. RunStatus).
type Run struct {
	// ID — уникальный идентификатор run.
	ID int64 `json:"id"`

	// WorkflowID — ссылка на workflow, чей action выполняется.
	WorkflowID int64 `json:"workflow_id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// IdempotencyKey — ключ дедупликации: значение заголовка
	// X-Idempotency-Key либо sha256 от raw body.
	IdempotencyKey string `json:"idempotency_key"`

	// TriggerPayload — JSON-объект из тела webhook-доставки.
	TriggerPayload map[string]any `json:"trigger_payload"`

	// TriggerHeaders — копия входящих заголовков после редактирования
	// чувствительных значений.
	TriggerHeaders map[string]string `json:"trigger_headers,omitempty"`

	// ErrorMessage — последняя ошибка выполнения (для retrying и dead_letter).
	ErrorMessage string `json:"error_message,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения статуса.
	UpdatedAt time.Time `json:"updated_at"`
}

// RunExecution — run, соединённый с action-конфигурацией его workflow.
// Ровно то, что нужно воркеру для одной обработки: статус для guard'а
// и параметры downstream-вызова.
type RunExecution struct {
	RunID          int64
	WorkflowID     int64
	Status         RunStatus
	TriggerPayload map[string]any
	ActionURL      string
	ActionMethod   string
	ActionHeaders  map[string]string
	TimeoutSeconds int
}
