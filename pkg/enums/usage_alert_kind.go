package enums

import "fmt"

// UsageAlertKind names the condition that raised a usage alert.
type UsageAlertKind string

const (
	UsageAlertKindBrandsLimit    UsageAlertKind = "brands_limit"
	UsageAlertKindBrandsWarning  UsageAlertKind = "brands_warning"
	UsageAlertKindUsersLimit     UsageAlertKind = "users_limit"
	UsageAlertKindUsersWarning   UsageAlertKind = "users_warning"
	UsageAlertKindPaymentFailed  UsageAlertKind = "payment_failed"
	UsageAlertKindDisputeCreated UsageAlertKind = "dispute_created"
	UsageAlertKindTaskFailed     UsageAlertKind = "task_failed"
)

var validUsageAlertKinds = []UsageAlertKind{
	UsageAlertKindBrandsLimit,
	UsageAlertKindBrandsWarning,
	UsageAlertKindUsersLimit,
	UsageAlertKindUsersWarning,
	UsageAlertKindPaymentFailed,
	UsageAlertKindDisputeCreated,
	UsageAlertKindTaskFailed,
}

// String implements fmt.Stringer.
func (v UsageAlertKind) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v UsageAlertKind) IsValid() bool {
	for _, candidate := range validUsageAlertKinds {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseUsageAlertKind converts raw input into a UsageAlertKind.
func ParseUsageAlertKind(value string) (UsageAlertKind, error) {
	for _, candidate := range validUsageAlertKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid usage alert kind %q", value)
}
