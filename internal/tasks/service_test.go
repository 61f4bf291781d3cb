package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

func newTasksTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:tasks_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.BackgroundTask{}, &models.UsageAlert{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTasksService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(db.NewWithConn(conn))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func newTasksWorker(t *testing.T, conn *gorm.DB) *Worker {
	t.Helper()
	worker, err := NewWorker(WorkerParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		DB:     db.NewWithConn(conn),
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	return worker
}

func taskAdmin(companyID uuid.UUID) rbac.Actor {
	return rbac.Actor{UserID: uuid.New(), CompanyID: &companyID, UserType: enums.UserTypeCompanyAdmin}
}

func TestEnqueueAndRunTask(t *testing.T) {
	conn := newTasksTestDB(t)
	svc := newTasksService(t, conn)
	worker := newTasksWorker(t, conn)
	ctx := context.Background()
	companyID := uuid.New()

	var gotPayload string
	worker.Register("send-report", func(ctx context.Context, task *Execution) error {
		var p struct {
			Month string `json:"month"`
		}
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return err
		}
		gotPayload = p.Month
		return nil
	})

	dto, err := svc.Enqueue(ctx, EnqueueRequest{
		TaskType:  "send-report",
		CompanyID: &companyID,
		Payload:   map[string]string{"month": "2026-02"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if dto.Status != enums.TaskStatusPending || dto.Queue != enums.TaskQueueNormal {
		t.Fatalf("unexpected handle %+v", dto)
	}

	ran, err := worker.RunOnce(ctx)
	if err != nil || !ran {
		t.Fatalf("run once: ran=%v err=%v", ran, err)
	}
	if gotPayload != "2026-02" {
		t.Fatalf("handler saw payload %q", gotPayload)
	}

	reloaded, err := svc.Get(ctx, taskAdmin(companyID), dto.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Status != enums.TaskStatusCompleted || reloaded.CompletedAt == nil {
		t.Fatalf("expected completed, got %+v", reloaded)
	}
}

func TestHighPriorityQueueRunsFirst(t *testing.T) {
	conn := newTasksTestDB(t)
	svc := newTasksService(t, conn)
	worker := newTasksWorker(t, conn)
	ctx := context.Background()

	var order []string
	worker.Register("probe", func(ctx context.Context, task *Execution) error {
		var p struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return err
		}
		order = append(order, p.Label)
		return nil
	})

	if _, err := svc.Enqueue(ctx, EnqueueRequest{TaskType: "probe", Queue: enums.TaskQueueLowPriority, Payload: map[string]string{"label": "low"}}); err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	if _, err := svc.Enqueue(ctx, EnqueueRequest{TaskType: "probe", Queue: enums.TaskQueueHighPriority, Payload: map[string]string{"label": "high"}}); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	for i := 0; i < 2; i++ {
		if ran, err := worker.RunOnce(ctx); err != nil || !ran {
			t.Fatalf("run %d: ran=%v err=%v", i, ran, err)
		}
	}
	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected high before low, got %v", order)
	}
}

func TestFailedTaskRetriesWithBackoffThenAlerts(t *testing.T) {
	conn := newTasksTestDB(t)
	svc := newTasksService(t, conn)
	worker := newTasksWorker(t, conn)
	ctx := context.Background()
	companyID := uuid.New()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	worker.now = func() time.Time { return clock }
	worker.Register("flaky", func(ctx context.Context, task *Execution) error {
		return errors.New("boom")
	})

	dto, err := svc.Enqueue(ctx, EnqueueRequest{
		TaskType:    "flaky",
		CompanyID:   &companyID,
		Payload:     map[string]string{},
		MaxAttempts: 2,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if ran, err := worker.RunOnce(ctx); err != nil || !ran {
		t.Fatalf("first attempt: ran=%v err=%v", ran, err)
	}
	var row models.BackgroundTask
	if err := conn.First(&row, "id = ?", dto.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.Status != enums.TaskStatusRetry || row.Attempts != 1 {
		t.Fatalf("expected retry after first attempt, got %+v", row)
	}
	wantNext := clock.Add(baseRetryDelay)
	if !row.ScheduledAt.Equal(wantNext) {
		t.Fatalf("expected backoff to %s, got %s", wantNext, row.ScheduledAt)
	}

	// before the backoff elapses nothing is due
	if ran, err := worker.RunOnce(ctx); err != nil || ran {
		t.Fatalf("expected idle poll, ran=%v err=%v", ran, err)
	}

	clock = clock.Add(time.Minute)
	if ran, err := worker.RunOnce(ctx); err != nil || !ran {
		t.Fatalf("second attempt: ran=%v err=%v", ran, err)
	}
	if err := conn.First(&row, "id = ?", dto.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.Status != enums.TaskStatusFailed || row.LastError == nil {
		t.Fatalf("expected terminal failure, got %+v", row)
	}

	var alert models.UsageAlert
	if err := conn.First(&alert, "company_id = ? AND kind = ?", companyID, enums.UsageAlertKindTaskFailed).Error; err != nil {
		t.Fatalf("expected task_failed alert: %v", err)
	}
}

func TestCheckpointSurvivesRetry(t *testing.T) {
	conn := newTasksTestDB(t)
	svc := newTasksService(t, conn)
	worker := newTasksWorker(t, conn)
	ctx := context.Background()

	attempts := 0
	worker.Register("import", func(ctx context.Context, task *Execution) error {
		attempts++
		if attempts == 1 {
			if err := task.SaveCheckpoint(ctx, map[string]int{"rows": 40}); err != nil {
				return err
			}
			return errors.New("interrupted")
		}
		var cp struct {
			Rows int `json:"rows"`
		}
		if err := json.Unmarshal(task.Checkpoint, &cp); err != nil {
			return err
		}
		if cp.Rows != 40 {
			return errors.New("checkpoint lost")
		}
		return nil
	})

	dto, err := svc.Enqueue(ctx, EnqueueRequest{TaskType: "import", Payload: map[string]string{}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if ran, err := worker.RunOnce(ctx); err != nil || !ran {
		t.Fatalf("first attempt: ran=%v err=%v", ran, err)
	}

	// jump past the backoff
	worker.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	if ran, err := worker.RunOnce(ctx); err != nil || !ran {
		t.Fatalf("second attempt: ran=%v err=%v", ran, err)
	}

	var row models.BackgroundTask
	if err := conn.First(&row, "id = ?", dto.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.Status != enums.TaskStatusCompleted {
		t.Fatalf("expected completion from checkpoint, got %s", row.Status)
	}
}

func TestCancelPendingAndScoping(t *testing.T) {
	conn := newTasksTestDB(t)
	svc := newTasksService(t, conn)
	ctx := context.Background()
	companyID := uuid.New()

	dto, err := svc.Enqueue(ctx, EnqueueRequest{TaskType: "export", CompanyID: &companyID, Payload: map[string]string{}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// a stranger admin cannot see or cancel it
	if _, err := svc.Get(ctx, taskAdmin(uuid.New()), dto.ID); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for stranger, got %v", err)
	}

	cancelled, err := svc.Cancel(ctx, taskAdmin(companyID), dto.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.TaskStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// a finished task cannot be cancelled again
	if _, err := svc.Cancel(ctx, taskAdmin(companyID), dto.ID); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	page, err := svc.List(ctx, taskAdmin(companyID), nil, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected one task, got %d", page.Total)
	}
}
