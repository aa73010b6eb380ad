package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Ограничения на конфигурацию workflow.
const (
	MinTimeoutSeconds     = 1
	MaxTimeoutSeconds     = 30
	DefaultTimeoutSeconds = 10
)

// triggerKeyPattern — допустимый формат trigger_key.
var triggerKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{6,128}$`)

// Workflow — регистрация связки "триггер → downstream action".
//
// Workflow создаётся административно и после этого неизменяем:
// webhook-приём резолвит trigger_key в workflow, а воркер выполняет
// его action для каждого run.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID int64 `json:"id"`

	// Name — человекочитаемое имя workflow.
	Name string `json:"name"`

	// TriggerKey — стабильный внешний идентификатор триггера.
	// Глобально уникален; используется в пути webhook-эндпоинта.
	TriggerKey string `json:"trigger_key"`

	// ActionURL — URL downstream action.
	ActionURL string `json:"action_url"`

	// ActionMethod — HTTP-метод action: POST, PUT или PATCH.
	ActionMethod string `json:"action_method"`

	// ActionHeaders — заголовки, отправляемые с action-запросом.
	ActionHeaders map[string]string `json:"action_headers"`

	// TimeoutSeconds — таймаут action-запроса, в границах 1..30.
	TimeoutSeconds int `json:"timeout_seconds"`

	// CreatedAt — время создания workflow.
	CreatedAt time.Time `json:"created_at"`
}

// ValidMethod проверяет, что метод входит в разрешённый набор.
func ValidMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}

// Validate проверяет инварианты workflow перед созданием.
func (w *Workflow) Validate() error {
	if w.Name == "" || len(w.Name) > 255 {
		return fmt.Errorf("name must be 1..255 characters")
	}
	if !triggerKeyPattern.MatchString(w.TriggerKey) {
		return fmt.Errorf("trigger_key must match %s", triggerKeyPattern)
	}
	u, err := url.Parse(w.ActionURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("action_url must be a valid http(s) URL")
	}
	if !ValidMethod(w.ActionMethod) {
		return fmt.Errorf("action_method must be one of POST, PUT, PATCH")
	}
	if w.TimeoutSeconds < MinTimeoutSeconds || w.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be in [%d, %d]", MinTimeoutSeconds, MaxTimeoutSeconds)
	}
	return nil
}
