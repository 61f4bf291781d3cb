package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// BackgroundTask is a unit of deferred work claimed by worker processes.
// Checkpoint lets long-running handlers persist partial progress so a retry
// resumes instead of restarting.
type BackgroundTask struct {
	ID          uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TaskType    string           `gorm:"column:task_type;not null;index"`
	Queue       enums.TaskQueue  `gorm:"column:queue;type:task_queue;not null;default:'normal';index:ix_background_tasks_claim"`
	Status      enums.TaskStatus `gorm:"column:status;type:task_status;not null;default:'pending';index:ix_background_tasks_claim"`
	CompanyID   *uuid.UUID       `gorm:"column:company_id;type:uuid;index"`
	Payload     json.RawMessage  `gorm:"column:payload;type:jsonb;not null"`
	Checkpoint  json.RawMessage  `gorm:"column:checkpoint;type:jsonb"`
	Attempts    int              `gorm:"column:attempts;not null;default:0"`
	MaxAttempts int              `gorm:"column:max_attempts;not null;default:5"`
	LastError   *string          `gorm:"column:last_error"`
	ScheduledAt time.Time        `gorm:"column:scheduled_at;not null;index:ix_background_tasks_claim"`
	StartedAt   *time.Time       `gorm:"column:started_at"`
	CompletedAt *time.Time       `gorm:"column:completed_at"`
	LockedBy    *string          `gorm:"column:locked_by"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
