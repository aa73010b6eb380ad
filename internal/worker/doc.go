// Package worker выполняет runs: для каждого принятого webhook-события
// вызывает downstream action его workflow.
//
// # Обзор
//
// Worker — stateless компонент, который:
//
//   - Получает job'ы {run_id} из очереди runs.dispatch (блокирующий poll)
//   - Загружает run вместе с action-конфигурацией workflow (join)
//   - Атомарно захватывает run (queued/retrying → running) — idempotency
//     guard против повторных доставок и конкурентных pickup'ов
//   - Выполняет downstream HTTP-вызов через Invoker
//   - Реализует retry с exponential backoff, до max attempts
//   - Терминализирует run: succeeded либо dead_letter
//
// Workers масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди. Внутри экземпляра конкуренции нет:
// один поток, один run за раз, backoff-сон блокирует весь воркер.
//
// # State machine
//
//	queued → running → succeeded
//	                 ↘ retrying → running (следующая попытка)
//	                 ↘ dead_letter
//
// Терминальные статусы не покидаются никогда. Падение воркера посреди
// попытки оставляет run в running — это допустимый liveness gap,
// разруливаемый оперативно, ядро его не чинит.
//
// # Классификация ошибок
//
// Invoker различает transient (5xx, сетевой сбой) и non-retryable
// (прочие не-2xx, ошибка конфигурации) исходы. Retry получают только
// transient; non-retryable сразу уводит run в dead_letter, не тратя
// бюджет попыток.
//
// # Sweep
//
// Очередь и БД — разные системы без общей транзакции: run может быть
// закоммичен, а enqueue — потерян. Когда очередь пуста, воркер
// периодически подбирает такие застрявшие queued runs напрямую из БД
// и обрабатывает их тем же путём.
package worker
