package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

const defaultMaxAttempts = 5

// TaskDTO is the handle returned to callers that enqueue deferred work.
type TaskDTO struct {
	ID          uuid.UUID        `json:"id"`
	TaskType    string           `json:"task_type"`
	Queue       enums.TaskQueue  `json:"queue"`
	Status      enums.TaskStatus `json:"status"`
	CompanyID   *uuid.UUID       `json:"company_id,omitempty"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	LastError   *string          `json:"last_error,omitempty"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// EnqueueRequest describes a unit of deferred work.
type EnqueueRequest struct {
	TaskType    string          `json:"task_type" validate:"required"`
	Queue       enums.TaskQueue `json:"queue"`
	CompanyID   *uuid.UUID      `json:"company_id"`
	Payload     any             `json:"payload"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	MaxAttempts int             `json:"max_attempts"`
}

// Service enqueues and tracks background tasks. Execution lives in Worker.
type Service interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*TaskDTO, error)
	Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*TaskDTO, error)
	List(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[TaskDTO], error)
	Cancel(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*TaskDTO, error)
}

type service struct {
	db *db.Client
}

func NewService(client *db.Client) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &service{db: client}, nil
}

func (s *service) Enqueue(ctx context.Context, req EnqueueRequest) (*TaskDTO, error) {
	taskType := strings.TrimSpace(req.TaskType)
	if taskType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task_type is required")
	}
	queue := req.Queue
	if queue == "" {
		queue = enums.TaskQueueNormal
	}
	if !queue.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown task queue").
			WithDetails(map[string]any{"queue": string(req.Queue)})
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode task payload")
	}
	scheduledAt := time.Now().UTC()
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	task := &models.BackgroundTask{
		ID:          uuid.New(),
		TaskType:    taskType,
		Queue:       queue,
		Status:      enums.TaskStatusPending,
		CompanyID:   req.CompanyID,
		Payload:     payload,
		MaxAttempts: maxAttempts,
		ScheduledAt: scheduledAt,
	}
	if err := NewRepository(s.db.DB()).Create(ctx, task); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueue task")
	}
	return taskFromModel(task), nil
}

func (s *service) Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*TaskDTO, error) {
	task, err := s.loadScoped(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return taskFromModel(task), nil
}

func (s *service) List(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[TaskDTO], error) {
	var empty pagination.Page[TaskDTO]
	scope, err := resolveCompanyScope(actor, companyID)
	if err != nil {
		return empty, err
	}
	rows, total, err := NewRepository(s.db.DB()).ListByCompany(ctx, scope, p)
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list tasks")
	}
	items := make([]TaskDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *taskFromModel(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

// Cancel stops a task that has not started. Running or finished tasks
// cannot be cancelled.
func (s *service) Cancel(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*TaskDTO, error) {
	repo := NewRepository(s.db.DB())
	if _, err := s.loadScoped(ctx, actor, id); err != nil {
		return nil, err
	}
	cancelled, err := repo.MarkCancelled(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "task is running or already finished")
	}
	task, err := repo.Find(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload task")
	}
	return taskFromModel(task), nil
}

func (s *service) loadScoped(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*models.BackgroundTask, error) {
	task, err := NewRepository(s.db.DB()).Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "task not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load task")
	}
	if actor.IsSuperuser {
		return task, nil
	}
	if task.CompanyID == nil || !actor.IsCompanyAdminOf(*task.CompanyID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "task not found")
	}
	return task, nil
}

func resolveCompanyScope(actor rbac.Actor, companyID *uuid.UUID) (uuid.UUID, error) {
	if actor.IsSuperuser {
		if companyID != nil {
			return *companyID, nil
		}
		if actor.CompanyID != nil {
			return *actor.CompanyID, nil
		}
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "company filter required")
	}
	if actor.CompanyID == nil || actor.UserType != enums.UserTypeCompanyAdmin {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient permissions")
	}
	if companyID != nil && *companyID != *actor.CompanyID {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot view another company's tasks")
	}
	return *actor.CompanyID, nil
}

func taskFromModel(m *models.BackgroundTask) *TaskDTO {
	return &TaskDTO{
		ID:          m.ID,
		TaskType:    m.TaskType,
		Queue:       m.Queue,
		Status:      m.Status,
		CompanyID:   m.CompanyID,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		LastError:   m.LastError,
		ScheduledAt: m.ScheduledAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
	}
}
