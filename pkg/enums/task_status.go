package enums

import "fmt"

// TaskStatus tracks a background task through its lifecycle.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusRetry      TaskStatus = "retry"
)

var validTaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusProcessing,
	TaskStatusCompleted,
	TaskStatusFailed,
	TaskStatusCancelled,
	TaskStatusRetry,
}

// String implements fmt.Stringer.
func (v TaskStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v TaskStatus) IsValid() bool {
	for _, candidate := range validTaskStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseTaskStatus converts raw input into a TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, error) {
	for _, candidate := range validTaskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task status %q", value)
}
