package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// queueOrder dispatches high priority tasks ahead of the rest.
var queueOrder = []enums.TaskQueue{
	enums.TaskQueueHighPriority,
	enums.TaskQueueNormal,
	enums.TaskQueueLowPriority,
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, task *models.BackgroundTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.BackgroundTask, error) {
	var task models.BackgroundTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID, p pagination.Params) ([]models.BackgroundTask, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.BackgroundTask{}).Where("company_id = ?", companyID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.BackgroundTask
	err := q.Order("created_at DESC").Offset(p.Offset()).Limit(p.Limit()).Find(&rows).Error
	return rows, total, err
}

// NextRunnable returns the oldest due task on the highest-priority queue
// that has one. Claiming is a separate guarded update so concurrent workers
// can race on the same candidate safely.
func (r *Repository) NextRunnable(ctx context.Context, now time.Time) (*models.BackgroundTask, error) {
	for _, queue := range queueOrder {
		var task models.BackgroundTask
		err := r.db.WithContext(ctx).
			Where("queue = ? AND status IN ? AND scheduled_at <= ?",
				queue, []enums.TaskStatus{enums.TaskStatusPending, enums.TaskStatusRetry}, now).
			Order("scheduled_at").
			First(&task).Error
		if err == nil {
			return &task, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "poll task queue")
		}
	}
	return nil, nil
}

// Claim moves a task to processing if no other worker got there first.
func (r *Repository) Claim(ctx context.Context, task *models.BackgroundTask, workerID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BackgroundTask{}).
		Where("id = ? AND status IN ?", task.ID,
			[]enums.TaskStatus{enums.TaskStatusPending, enums.TaskStatusRetry}).
		Updates(map[string]any{
			"status":     enums.TaskStatusProcessing,
			"locked_by":  workerID,
			"started_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "claim task")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	task.Status = enums.TaskStatusProcessing
	task.LockedBy = &workerID
	task.StartedAt = &now
	task.Attempts++
	return true, nil
}

func (r *Repository) SaveCheckpoint(ctx context.Context, id uuid.UUID, checkpoint []byte) error {
	return r.db.WithContext(ctx).
		Model(&models.BackgroundTask{}).
		Where("id = ?", id).
		UpdateColumn("checkpoint", checkpoint).Error
}

func (r *Repository) MarkCompleted(ctx context.Context, task *models.BackgroundTask, now time.Time) error {
	task.Status = enums.TaskStatusCompleted
	task.CompletedAt = &now
	task.LockedBy = nil
	task.LastError = nil
	return r.db.WithContext(ctx).
		Model(task).
		Select("status", "completed_at", "locked_by", "last_error").
		Updates(task).Error
}

// MarkRetry reschedules a failed attempt that still has budget left.
func (r *Repository) MarkRetry(ctx context.Context, task *models.BackgroundTask, cause error, nextRun time.Time) error {
	msg := cause.Error()
	task.Status = enums.TaskStatusRetry
	task.LastError = &msg
	task.LockedBy = nil
	task.ScheduledAt = nextRun
	return r.db.WithContext(ctx).
		Model(task).
		Select("status", "last_error", "locked_by", "scheduled_at").
		Updates(task).Error
}

// MarkFailed records the terminal failure.
func (r *Repository) MarkFailed(ctx context.Context, task *models.BackgroundTask, cause error, now time.Time) error {
	msg := cause.Error()
	task.Status = enums.TaskStatusFailed
	task.LastError = &msg
	task.LockedBy = nil
	task.CompletedAt = &now
	return r.db.WithContext(ctx).
		Model(task).
		Select("status", "last_error", "locked_by", "completed_at").
		Updates(task).Error
}

// MarkCancelled cancels a task that has not started running yet.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BackgroundTask{}).
		Where("id = ? AND status IN ?", id,
			[]enums.TaskStatus{enums.TaskStatusPending, enums.TaskStatusRetry}).
		Updates(map[string]any{"status": enums.TaskStatusCancelled, "completed_at": now})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "cancel task")
	}
	return res.RowsAffected > 0, nil
}
