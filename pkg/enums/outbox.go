package enums

import "fmt"

// OutboxEventType names a domain event recorded in the outbox.
type OutboxEventType string

const (
	OutboxEventTypeUsageAlertRaised      OutboxEventType = "usage_alert.raised"
	OutboxEventTypeUsageAlertResolved    OutboxEventType = "usage_alert.resolved"
	OutboxEventTypeSubscriptionActivated OutboxEventType = "subscription.activated"
	OutboxEventTypeSubscriptionCanceled  OutboxEventType = "subscription.canceled"
	OutboxEventTypeSubscriptionPastDue   OutboxEventType = "subscription.past_due"
	OutboxEventTypeInvoiceIssued         OutboxEventType = "invoice.issued"
	OutboxEventTypeInvoicePaid           OutboxEventType = "invoice.paid"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventTypeUsageAlertRaised,
	OutboxEventTypeUsageAlertResolved,
	OutboxEventTypeSubscriptionActivated,
	OutboxEventTypeSubscriptionCanceled,
	OutboxEventTypeSubscriptionPastDue,
	OutboxEventTypeInvoiceIssued,
	OutboxEventTypeInvoicePaid,
}

// String implements fmt.Stringer.
func (v OutboxEventType) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into a OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
