package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Action — параметры одного downstream HTTP-вызова.
type Action struct {
	// Method — HTTP-метод: POST, PUT или PATCH.
	Method string

	// URL — endpoint downstream action.
	URL string

	// Headers — заголовки запроса из конфигурации workflow.
	Headers map[string]string

	// Payload — JSON-объект, отправляемый телом запроса.
	Payload map[string]any

	// Timeout — таймаут всего запроса.
	Timeout time.Duration
}

// Invoker выполняет один downstream HTTP-вызов и классифицирует исход.
// Retry здесь нет — повторные попытки целиком ответственность Worker'а.
type Invoker interface {
	Invoke(ctx context.Context, action Action) (int, error)
}

// ActionError — неуспешный исход downstream-вызова.
//
// Transient=true — временная ошибка (5xx либо сетевой сбой без кода
// ответа), имеет смысл повторить. Transient=false — non-retryable:
// любой другой не-2xx статус.
type ActionError struct {
	// StatusCode — HTTP-код ответа; 0, если ответа не было.
	StatusCode int

	// Transient — подлежит ли исход retry.
	Transient bool

	// Err — причина для сетевых/timeout сбоев.
	Err error
}

// Error возвращает сообщение в формате, сохраняемом в error_message run'а.
func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("action request failed: %v", e.Err)
	}
	if e.Transient {
		return fmt.Sprintf("transient downstream status=%d", e.StatusCode)
	}
	return fmt.Sprintf("non-retryable downstream status=%d", e.StatusCode)
}

// Unwrap отдаёт сетевую причину, если она есть.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// HTTPInvoker — Invoker поверх net/http.
type HTTPInvoker struct {
	client *http.Client
}

// NewHTTPInvoker создаёт HTTPInvoker.
// Таймаут задаётся per-request из Action.Timeout, не на клиенте.
func NewHTTPInvoker() *HTTPInvoker {
	return &HTTPInvoker{client: &http.Client{}}
}

// Invoke выполняет один HTTP-запрос.
//
// Классификация:
//   - 200..299 → успех, возвращается код ответа
//   - 500..599 → transient failure
//   - прочие статусы → non-retryable failure
//   - сетевой сбой / таймаут → failure без кода ответа (transient)
//
// Метод вне POST/PUT/PATCH — ошибка конфигурации, запрос не выполняется.
func (inv *HTTPInvoker) Invoke(ctx context.Context, action Action) (int, error) {
	switch action.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMethod, action.Method)
	}

	payload := action.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	if action.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, action.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	for key, value := range action.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return 0, &ActionError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	// Тело ответа не используется, но вычитываем его для reuse соединения
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return resp.StatusCode, &ActionError{StatusCode: resp.StatusCode, Transient: true}
	default:
		return resp.StatusCode, &ActionError{StatusCode: resp.StatusCode, Transient: false}
	}
}
