package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

const (
	defaultPollInterval = 5 * time.Second
	baseRetryDelay      = 30 * time.Second
)

// Execution is the view of a claimed task a handler works with.
type Execution struct {
	ID         uuid.UUID
	TaskType   string
	CompanyID  *uuid.UUID
	Payload    json.RawMessage
	Checkpoint json.RawMessage

	repo *Repository
}

// SaveCheckpoint persists partial progress so a retry resumes from it.
func (e *Execution) SaveCheckpoint(ctx context.Context, state any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkpoint")
	}
	if err := e.repo.SaveCheckpoint(ctx, e.ID, raw); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save checkpoint")
	}
	e.Checkpoint = raw
	return nil
}

// Handler executes one task type.
type Handler func(ctx context.Context, task *Execution) error

// WorkerParams configure the task worker.
type WorkerParams struct {
	Logger       *logger.Logger
	DB           *db.Client
	WorkerID     string
	PollInterval time.Duration
	Now          func() time.Time
}

// Worker claims due tasks and dispatches them to registered handlers.
type Worker struct {
	logg     *logger.Logger
	db       *db.Client
	workerID string
	poll     time.Duration
	now      func() time.Time
	handlers map[string]Handler
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	workerID := params.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		logg:     params.Logger,
		db:       params.DB,
		workerID: workerID,
		poll:     poll,
		now:      now,
		handlers: map[string]Handler{},
	}, nil
}

// Register binds a handler to a task type. Later registrations win.
func (w *Worker) Register(taskType string, handler Handler) {
	if taskType == "" || handler == nil {
		return
	}
	w.handlers[taskType] = handler
}

// Run polls for due tasks until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		// drain everything that is due before sleeping again
		for {
			ran, err := w.RunOnce(ctx)
			if err != nil {
				w.logg.Error(ctx, "task dispatch failed", err)
				break
			}
			if !ran {
				break
			}
		}
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "task worker context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes at most one due task. It reports whether a
// task ran so callers can drain the queue.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	repo := NewRepository(w.db.DB())
	now := w.now().UTC()

	task, err := repo.NextRunnable(ctx, now)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	claimed, err := repo.Claim(ctx, task, w.workerID, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		// lost the race; the caller loops and finds the next one
		return true, nil
	}

	logCtx := w.logg.WithFields(ctx, map[string]any{
		"task_id":   task.ID,
		"task_type": task.TaskType,
		"attempt":   task.Attempts,
	})

	handler, ok := w.handlers[task.TaskType]
	if !ok {
		err := fmt.Errorf("no handler registered for task type %q", task.TaskType)
		w.logg.Error(logCtx, "task has no handler", err)
		return true, w.finalize(ctx, repo, task, err)
	}

	execution := &Execution{
		ID:         task.ID,
		TaskType:   task.TaskType,
		CompanyID:  task.CompanyID,
		Payload:    task.Payload,
		Checkpoint: task.Checkpoint,
		repo:       repo,
	}
	if handlerErr := handler(ctx, execution); handlerErr != nil {
		w.logg.Error(logCtx, "task attempt failed", handlerErr)
		if task.Attempts < task.MaxAttempts {
			next := w.now().UTC().Add(retryDelay(task.Attempts))
			return true, repo.MarkRetry(ctx, task, handlerErr, next)
		}
		return true, w.finalize(ctx, repo, task, handlerErr)
	}

	if err := repo.MarkCompleted(ctx, task, w.now().UTC()); err != nil {
		return true, err
	}
	w.logg.Info(logCtx, "task completed")
	return true, nil
}

// finalize records a terminal failure and surfaces it to the owning company.
func (w *Worker) finalize(ctx context.Context, repo *Repository, task *models.BackgroundTask, cause error) error {
	if err := repo.MarkFailed(ctx, task, cause, w.now().UTC()); err != nil {
		return err
	}
	if task.CompanyID == nil {
		return nil
	}
	alert := &models.UsageAlert{
		ID:        uuid.New(),
		CompanyID: *task.CompanyID,
		Kind:      enums.UsageAlertKindTaskFailed,
		Status:    enums.UsageAlertStatusActive,
		Message:   fmt.Sprintf("background task %s failed permanently", task.TaskType),
	}
	if err := w.db.DB().WithContext(ctx).Create(alert).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "raise task alert")
	}
	return nil
}

// retryDelay doubles per attempt: 30s, 1m, 2m, ...
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return baseRetryDelay << (attempts - 1)
}
