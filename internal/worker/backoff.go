package worker

import (
	"fmt"
	"time"
)

// Backoff вычисляет задержку перед следующей попыткой:
//
//	delay = min(base * 2^(attempt-1), cap)
//
// Нумерация попыток начинается с 1. Детерминированная, без jitter —
// для single-tenant ядра этого достаточно.
//
// attempt < 1 — ошибка программирования: паникуем вместо того, чтобы
// молча вернуть какую-то задержку.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		panic(fmt.Sprintf("backoff: attempt must be >= 1, got %d", attempt))
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
