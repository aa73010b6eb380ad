package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/hookrelay/internal/domain"
	"github.com/shaiso/hookrelay/internal/mq"
	"github.com/shaiso/hookrelay/internal/repo"
	"github.com/shaiso/hookrelay/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxAttempts    = 3
	defaultBackoffBase    = time.Second
	defaultBackoffCap     = 30 * time.Second
	defaultPollTimeout    = time.Second
	defaultSweepInterval  = 10 * time.Second
	defaultSweepAfter     = 30 * time.Second
	defaultSweepBatchSize = 50
)

// RunStore — доступ к runs, нужный воркеру.
// Реализуется repo.RunRepo.
type RunStore interface {
	GetForExecution(ctx context.Context, runID int64) (*domain.RunExecution, error)
	ClaimRunning(ctx context.Context, runID int64) (bool, error)
	UpdateStatus(ctx context.Context, runID int64, status domain.RunStatus, errMsg string) error
	ListStaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error)
}

// Poller — блокирующее получение одного job'а из очереди.
// Реализуется mq.Consumer.
type Poller interface {
	Poll(ctx context.Context, timeout time.Duration) (*mq.Delivery, error)
}

// Worker выполняет runs.
//
// Worker — однопоточный цикл poll-process без внутренней конкуренции:
// параллелизм достигается исключительно количеством экземпляров воркера
// над общей очередью и общей БД. Backoff-сон блокирует весь воркер.
//
// Доставка из очереди at-least-once, поэтому перед выполнением run
// атомарно переводится queued/retrying → running (ClaimRunning) —
// повторные доставки и конкурентные pickup'ы схлопываются без
// повторного вызова downstream action.
//
// Когда очередь пуста, воркер периодически подбирает runs, застрявшие
// в queued (insert закоммичен, enqueue не случился) — см. maybeSweep.
type Worker struct {
	runs    RunStore
	queue   Poller
	invoker Invoker

	maxAttempts    int
	backoffBase    time.Duration
	backoffCap     time.Duration
	pollTimeout    time.Duration
	sweepInterval  time.Duration
	sweepAfter     time.Duration
	sweepBatchSize int

	lastSweep time.Time
	logger    *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	// Runs — хранилище runs.
	Runs RunStore

	// Queue опционален: без очереди воркер работает в polling-only
	// режиме, обрабатывая runs только через sweep.
	Queue Poller

	// Invoker опционален; если nil — используется NewHTTPInvoker().
	Invoker Invoker

	// Retry policy
	MaxAttempts int           // максимум попыток, включая первую (default: 3)
	BackoffBase time.Duration // базовая задержка (default: 1s)
	BackoffCap  time.Duration // потолок задержки (default: 30s)

	// PollTimeout — таймаут блокирующего poll (default: 1s)
	PollTimeout time.Duration

	// Sweep configuration
	SweepInterval  time.Duration // минимальный интервал между sweep'ами (default: 10s)
	SweepAfter     time.Duration // порог "застрял в queued" (default: 30s)
	SweepBatchSize int           // количество runs за один sweep (default: 50)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	backoffCap := cfg.BackoffCap
	if backoffCap <= 0 {
		backoffCap = defaultBackoffCap
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	sweepAfter := cfg.SweepAfter
	if sweepAfter <= 0 {
		sweepAfter = defaultSweepAfter
	}

	sweepBatchSize := cfg.SweepBatchSize
	if sweepBatchSize <= 0 {
		sweepBatchSize = defaultSweepBatchSize
	}

	invoker := cfg.Invoker
	if invoker == nil {
		invoker = NewHTTPInvoker()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		runs:           cfg.Runs,
		queue:          cfg.Queue,
		invoker:        invoker,
		maxAttempts:    maxAttempts,
		backoffBase:    backoffBase,
		backoffCap:     backoffCap,
		pollTimeout:    pollTimeout,
		sweepInterval:  sweepInterval,
		sweepAfter:     sweepAfter,
		sweepBatchSize: sweepBatchSize,
		logger:         logger,
	}
}

// Run крутит цикл poll-process до отмены контекста.
//
// Graceful drain: отмена проверяется между циклами; текущая обработка
// завершается, но backoff-сон прерывается отменой контекста.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"max_attempts", w.maxAttempts,
		"backoff_base", w.backoffBase,
		"backoff_cap", w.backoffCap,
		"polling_only", w.queue == nil,
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}

		delivery, err := w.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("poll failed", "error", err)
			continue
		}

		if delivery != nil {
			w.handleDelivery(ctx, delivery)
			continue
		}

		// Очередь пуста — удобный момент подобрать застрявшие runs
		w.maybeSweep(ctx)
	}
}

// pollOnce ждёт один job не дольше pollTimeout.
// В polling-only режиме просто спит pollTimeout.
func (w *Worker) pollOnce(ctx context.Context) (*mq.Delivery, error) {
	if w.queue == nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.pollTimeout):
			return nil, nil
		}
	}
	return w.queue.Poll(ctx, w.pollTimeout)
}

// handleDelivery обрабатывает один job из очереди.
func (w *Worker) handleDelivery(ctx context.Context, delivery *mq.Delivery) {
	runID, err := decodeJob(&delivery.Message)
	if err != nil {
		// Permanent decode error: не ретраим, job уходит в DLQ
		w.logger.Error("dropping malformed job",
			"message_id", delivery.Message.ID,
			"error", err,
		)
		if nackErr := delivery.Nack(false); nackErr != nil {
			w.logger.Warn("failed to nack malformed job", "error", nackErr)
		}
		return
	}

	if err := w.processRun(ctx, runID); err != nil {
		// Ошибка персистентности — вернём job в очередь для redelivery
		w.logger.Error("failed to process run", "run_id", runID, "error", err)
		if nackErr := delivery.Nack(true); nackErr != nil {
			w.logger.Warn("failed to nack job", "run_id", runID, "error", nackErr)
		}
		return
	}

	if ackErr := delivery.Ack(); ackErr != nil {
		w.logger.Warn("failed to ack job", "run_id", runID, "error", ackErr)
	}
}

// decodeJob извлекает run_id из payload сообщения.
func decodeJob(msg *mq.Message) (int64, error) {
	var payload mq.RunDispatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if payload.RunID <= 0 {
		return 0, fmt.Errorf("%w: missing run_id", ErrInvalidJob)
	}
	return payload.RunID, nil
}

// processRun выполняет state machine одного run'а.
//
// Возвращает ошибку только при сбое персистентности: она фатальна для
// текущей обработки и приводит к redelivery. Логические исходы
// (run не найден, уже обработан, dead_letter) ошибками не являются.
func (w *Worker) processRun(ctx context.Context, runID int64) error {
	logger := telemetry.WithRunID(w.logger, runID)

	exec, err := w.runs.GetForExecution(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		// Защитная ветка: при корректной работе не случается
		logger.Warn("run not found, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get run for execution: %w", err)
	}

	// Idempotency guard: атомарный переход queued/retrying → running.
	// Ноль затронутых строк — run уже обработан или взят другим воркером.
	claimed, err := w.runs.ClaimRunning(ctx, runID)
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	if !claimed {
		logger.Info("run already processed, skipping", "status", exec.Status)
		return nil
	}

	return w.attemptLoop(ctx, logger, exec)
}

// attemptLoop выполняет попытки downstream-вызова с retry и backoff.
// Попытки строго последовательны: попытка N+1 не начнётся, пока статус
// после попытки N не записан в БД.
func (w *Worker) attemptLoop(ctx context.Context, logger *slog.Logger, exec *domain.RunExecution) error {
	action := Action{
		Method:  exec.ActionMethod,
		URL:     exec.ActionURL,
		Headers: exec.ActionHeaders,
		Payload: exec.TriggerPayload,
		Timeout: time.Duration(exec.TimeoutSeconds) * time.Second,
	}

	for attempt := 1; ; attempt++ {
		statusCode, err := w.invoker.Invoke(ctx, action)
		if err == nil {
			telemetry.ActionAttempts.WithLabelValues("success").Inc()
			if uerr := w.runs.UpdateStatus(ctx, exec.RunID, domain.RunStatusSucceeded, ""); uerr != nil {
				return fmt.Errorf("update run to succeeded: %w", uerr)
			}
			telemetry.RunsTerminalized.WithLabelValues(string(domain.RunStatusSucceeded)).Inc()
			logger.Info("run succeeded", "attempt", attempt, "status_code", statusCode)
			return nil
		}

		errMsg := err.Error()

		if !retryable(err) {
			// Non-retryable исход не тратит бюджет retry:
			// сразу в dead_letter
			telemetry.ActionAttempts.WithLabelValues("permanent_error").Inc()
			if uerr := w.runs.UpdateStatus(ctx, exec.RunID, domain.RunStatusDeadLetter, errMsg); uerr != nil {
				return fmt.Errorf("update run to dead_letter: %w", uerr)
			}
			telemetry.RunsTerminalized.WithLabelValues(string(domain.RunStatusDeadLetter)).Inc()
			logger.Error("run moved to dead-letter", "attempt", attempt, "error", errMsg)
			return nil
		}

		telemetry.ActionAttempts.WithLabelValues("transient_error").Inc()

		if attempt >= w.maxAttempts {
			if uerr := w.runs.UpdateStatus(ctx, exec.RunID, domain.RunStatusDeadLetter, errMsg); uerr != nil {
				return fmt.Errorf("update run to dead_letter: %w", uerr)
			}
			telemetry.RunsTerminalized.WithLabelValues(string(domain.RunStatusDeadLetter)).Inc()
			logger.Error("run moved to dead-letter", "attempt", attempt, "error", errMsg)
			return nil
		}

		if uerr := w.runs.UpdateStatus(ctx, exec.RunID, domain.RunStatusRetrying, errMsg); uerr != nil {
			return fmt.Errorf("update run to retrying: %w", uerr)
		}

		delay := Backoff(attempt, w.backoffBase, w.backoffCap)
		logger.Warn("run retry scheduled", "attempt", attempt, "delay", delay, "error", errMsg)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// retryable решает, подлежит ли ошибка invoker'а повторной попытке.
// Transient ActionError (5xx, сетевой сбой) — да; non-retryable статус
// и ошибки конфигурации — нет.
func retryable(err error) bool {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Transient
	}
	return false
}

// maybeSweep подбирает runs, застрявшие в queued дольше sweepAfter.
// Закрывает зазор "insert закоммичен, enqueue потерян" и даёт
// polling-only режим при недоступной очереди. Выполняется в том же
// потоке, не чаще sweepInterval и только когда очередь пуста.
func (w *Worker) maybeSweep(ctx context.Context) {
	if time.Since(w.lastSweep) < w.sweepInterval {
		return
	}
	w.lastSweep = time.Now()

	ids, err := w.runs.ListStaleQueued(ctx, w.sweepAfter, w.sweepBatchSize)
	if err != nil {
		w.logger.Error("sweep failed to list stale runs", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	w.logger.Info("sweep found stale queued runs", "count", len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		telemetry.SweepRequeued.Inc()
		if err := w.processRun(ctx, id); err != nil {
			w.logger.Error("failed to process run from sweep", "run_id", id, "error", err)
		}
	}
}
