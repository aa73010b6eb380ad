// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилища, gateway, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - workflow_handler.go — обработчики для /workflows
//   - run_handler.go      — обработчики для /runs
//   - webhook_handler.go  — публичный приём webhook-доставок
//
// API разделён на две поверхности: административный REST
// (/api/v1/workflows, /api/v1/runs) и публичный webhook-эндпоинт
// (/api/v1/webhooks/{trigger_key}), через который внешние системы
// доставляют события.
package api
