package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery — доставленный job с методами ack/nack.
type Delivery struct {
	// Message — распарсенный конверт сообщения.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Ack подтверждает успешную обработку job'а.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет job.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer потребляет job'ы из очереди RabbitMQ в режиме блокирующего poll.
//
// В отличие от push-модели, Poll отдаёт ровно один job за вызов — воркер
// остаётся однопоточным циклом poll-process без внутренней конкуренции.
// Ack выполняет вызывающая сторона после обработки (at-least-once).
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	prefetch int

	deliveries <-chan amqp.Delivery
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Prefetch — количество сообщений для предварительной загрузки.
	// Для однопоточного воркера обычно 1.
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		prefetch: prefetch,
	}
}

// Poll блокируется до timeout в ожидании одного job'а.
// Возвращает (nil, nil) по истечении timeout и ошибку контекста при отмене.
// Некорректные конверты сообщений отправляются в DLQ, ожидание продолжается.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if c.deliveries == nil {
			if err := c.setupConsume(); err != nil {
				c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
				// Ждём переподключения, но не дольше timeout
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-timer.C:
					return nil, nil
				case <-c.conn.ReconnectNotify():
					continue
				}
			}
			c.logger.Info("consumer started", "queue", c.queue)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			return nil, nil

		case raw, ok := <-c.deliveries:
			if !ok {
				// Канал закрыт (разрыв соединения) — пересоздадим consume
				c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
				c.deliveries = nil
				continue
			}

			var msg Message
			if err := json.Unmarshal(raw.Body, &msg); err != nil {
				c.logger.Error("failed to unmarshal message",
					"queue", c.queue,
					"error", err,
					"body", string(raw.Body),
				)
				raw.Nack(false, false)
				continue
			}

			c.logger.Debug("received message",
				"queue", c.queue,
				"message_id", msg.ID,
				"type", msg.Type,
			)

			return &Delivery{Message: msg, Raw: raw}, nil
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() error {
	ch := c.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (ack вручную после обработки)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.deliveries = deliveries
	return nil
}
