package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/hookrelay/internal/domain"
	"github.com/shaiso/hookrelay/internal/ingest"
	"github.com/shaiso/hookrelay/internal/repo"
)

// WorkflowStore — доступ к workflows, нужный API.
// Реализуется repo.WorkflowRepo.
type WorkflowStore interface {
	Create(ctx context.Context, workflow *domain.Workflow) error
	GetByID(ctx context.Context, id int64) (*domain.Workflow, error)
	List(ctx context.Context) ([]domain.Workflow, error)
}

// RunStore — доступ к runs, нужный API.
// Реализуется repo.RunRepo.
type RunStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// Admitter — приём webhook-доставки.
// Реализуется ingest.Gateway.
type Admitter interface {
	Admit(ctx context.Context, triggerKey string, body []byte, headers map[string]string, idempotencyKey string) (*ingest.Admission, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows WorkflowStore
	runs      RunStore
	gateway   Admitter
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows WorkflowStore
	Runs      RunStore
	Gateway   Admitter
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		workflows: cfg.Workflows,
		runs:      cfg.Runs,
		gateway:   cfg.Gateway,
		logger:    logger,
	}
}
