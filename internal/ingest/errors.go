package ingest

import "errors"

// Ошибки приёма webhook-доставки.
var (
	// ErrUnknownTrigger — trigger_key не зарегистрирован.
	ErrUnknownTrigger = errors.New("unknown trigger key")

	// ErrInvalidPayload — тело доставки не является JSON-объектом.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrDuplicateConflict — конфликт вставки, но существующий run
	// не найден при read-back. Не должен возникать при корректной
	// работе: ядро никогда не удаляет runs.
	ErrDuplicateConflict = errors.New("duplicate event")
)
