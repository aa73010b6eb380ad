package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	queued → running → succeeded
//	                 ↘ retrying → running (следующая попытка)
//	                 ↘ dead_letter
type RunStatus string

const (
	// RunStatusQueued — run создан и ожидает в очереди.
	RunStatusQueued RunStatus = "queued"

	// RunStatusRunning — run выполняется воркером.
	RunStatusRunning RunStatus = "running"

	// RunStatusRetrying — попытка не удалась, запланирован retry.
	RunStatusRetrying RunStatus = "retrying"

	// RunStatusSucceeded — downstream action выполнен успешно.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusDeadLetter — все попытки исчерпаны либо ошибка
	// не подлежит retry; run терминален с сохранённой ошибкой.
	RunStatusDeadLetter RunStatus = "dead_letter"
)

// IsTerminal возвращает true, если статус финальный.
// Из терминального статуса run никогда не выходит.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusDeadLetter:
		return true
	default:
		return false
	}
}

// IsProcessable возвращает true, если воркер может взять run в работу.
// Это idempotency guard: повторная доставка job для run в любом другом
// статусе пропускается без выполнения downstream action.
func (s RunStatus) IsProcessable() bool {
	return s == RunStatusQueued || s == RunStatusRetrying
}
