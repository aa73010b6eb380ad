// HookRelay Worker — выполняет runs.
//
// Worker:
//   - Получает job'ы из RabbitMQ (блокирующий poll, prefetch 1)
//   - Атомарно забирает run (queued/retrying → running)
//   - Вызывает downstream action с retry и exponential backoff
//   - Периодически подбирает runs, застрявшие в queued
//
// Workers масштабируются горизонтально: два воркера не выполнят
// один run дважды.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/hookrelay/internal/mq"
	"github.com/shaiso/hookrelay/internal/repo"
	"github.com/shaiso/hookrelay/internal/telemetry"
	"github.com/shaiso/hookrelay/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting hookrelay-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	runRepo := repo.NewRunRepo(pool)

	// RabbitMQ; без него воркер работает в polling-only режиме
	var queue worker.Poller
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		queue = mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:    mq.QueueRunsDispatch,
			Prefetch: 1,
		})
	}

	// Создаём worker
	w := worker.New(worker.Config{
		Runs:          runRepo,
		Queue:         queue,
		MaxAttempts:   envInt("WORKER_MAX_ATTEMPTS", 0),
		BackoffBase:   envSeconds("WORKER_BACKOFF_BASE_SECONDS"),
		BackoffCap:    envSeconds("WORKER_BACKOFF_MAX_SECONDS"),
		PollTimeout:   envSeconds("WORKER_POLL_TIMEOUT_SECONDS"),
		SweepInterval: envSeconds("WORKER_SWEEP_INTERVAL_SECONDS"),
		SweepAfter:    envSeconds("WORKER_SWEEP_AFTER_SECONDS"),
		Logger:        logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Цикл воркера блокирует main до отмены контекста
	if err := w.Run(ctx); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}

	logger.Info("hookrelay-worker stopped")
}

// envInt читает целочисленную переменную окружения.
func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envSeconds читает переменную окружения с дробными секундами.
// Возвращает 0 (использовать default воркера), если не задана.
func envSeconds(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
