package enums

import "fmt"

// UsageAlertStatus tracks whether an alert still demands attention.
type UsageAlertStatus string

const (
	UsageAlertStatusActive    UsageAlertStatus = "active"
	UsageAlertStatusResolved  UsageAlertStatus = "resolved"
	UsageAlertStatusDismissed UsageAlertStatus = "dismissed"
)

var validUsageAlertStatuses = []UsageAlertStatus{
	UsageAlertStatusActive,
	UsageAlertStatusResolved,
	UsageAlertStatusDismissed,
}

// String implements fmt.Stringer.
func (v UsageAlertStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v UsageAlertStatus) IsValid() bool {
	for _, candidate := range validUsageAlertStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseUsageAlertStatus converts raw input into a UsageAlertStatus.
func ParseUsageAlertStatus(value string) (UsageAlertStatus, error) {
	for _, candidate := range validUsageAlertStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid usage alert status %q", value)
}
