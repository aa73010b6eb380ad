// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация job'ов в очередь
//   - consumer.go   — блокирующий poll job'ов из очереди
//
// Типы сообщений:
//   - run.dispatch — run принят и ожидает выполнения воркером
//
// Exchanges:
//   - hookrelay.runs — dispatch-события runs
//   - hookrelay.dlq  — dead letter queue для некорректных job'ов
//
// Доставка at-least-once: job может быть доставлен повторно после рестарта
// брокера или воркера, поэтому потребитель обязан быть идемпотентным по
// статусу run.
package mq
