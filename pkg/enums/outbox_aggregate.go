package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event refers to.
type OutboxAggregateType string

const (
	OutboxAggregateTypeCompany      OutboxAggregateType = "company"
	OutboxAggregateTypeSubscription OutboxAggregateType = "subscription"
	OutboxAggregateTypeInvoice      OutboxAggregateType = "invoice"
	OutboxAggregateTypeUsageAlert   OutboxAggregateType = "usage_alert"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	OutboxAggregateTypeCompany,
	OutboxAggregateTypeSubscription,
	OutboxAggregateTypeInvoice,
	OutboxAggregateTypeUsageAlert,
}

// String implements fmt.Stringer.
func (v OutboxAggregateType) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into a OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validOutboxAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox aggregate type %q", value)
}
