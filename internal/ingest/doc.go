// Package ingest реализует шлюз приёма webhook-доставок.
//
// Структура:
//   - gateway.go — Gateway.Admit: резолвинг триггера, дедупликация,
//     сохранение run, enqueue
//   - redact.go  — редактирование чувствительных входящих заголовков
//   - errors.go  — ошибки приёма
//
// Дедупликация построена на unique constraint (workflow_id,
// idempotency_key): optimistic insert, при конфликте — чтение
// существующего run. Ключ идемпотентности задаёт клиент заголовком
// X-Idempotency-Key, иначе берётся sha256 от raw body.
package ingest
