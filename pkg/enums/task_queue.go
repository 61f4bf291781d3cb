package enums

import "fmt"

// TaskQueue selects the worker queue a task is dispatched on.
type TaskQueue string

const (
	TaskQueueHighPriority TaskQueue = "high_priority"
	TaskQueueNormal       TaskQueue = "normal"
	TaskQueueLowPriority  TaskQueue = "low_priority"
)

var validTaskQueues = []TaskQueue{
	TaskQueueHighPriority,
	TaskQueueNormal,
	TaskQueueLowPriority,
}

// String implements fmt.Stringer.
func (v TaskQueue) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v TaskQueue) IsValid() bool {
	for _, candidate := range validTaskQueues {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseTaskQueue converts raw input into a TaskQueue.
func ParseTaskQueue(value string) (TaskQueue, error) {
	for _, candidate := range validTaskQueues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task queue %q", value)
}
