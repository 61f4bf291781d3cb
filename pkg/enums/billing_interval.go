package enums

import "fmt"

// BillingInterval is the cadence a plan bills on.
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalYearly  BillingInterval = "yearly"
	BillingIntervalOneTime BillingInterval = "one_time"
)

var validBillingIntervals = []BillingInterval{
	BillingIntervalMonthly,
	BillingIntervalYearly,
	BillingIntervalOneTime,
}

// String implements fmt.Stringer.
func (v BillingInterval) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v BillingInterval) IsValid() bool {
	for _, candidate := range validBillingIntervals {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseBillingInterval converts raw input into a BillingInterval.
func ParseBillingInterval(value string) (BillingInterval, error) {
	for _, candidate := range validBillingIntervals {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing interval %q", value)
}
