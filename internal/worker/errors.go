package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnsupportedMethod — метод action вне набора POST/PUT/PATCH.
	// Ошибка конфигурации: запрос не выполняется.
	ErrUnsupportedMethod = errors.New("unsupported action method")

	// ErrInvalidJob — некорректный queue job (битый JSON, нет run_id).
	// Permanent decode error: job не ретраится и уходит в DLQ.
	ErrInvalidJob = errors.New("invalid job payload")
)
