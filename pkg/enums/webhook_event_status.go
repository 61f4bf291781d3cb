package enums

import "fmt"

// WebhookEventStatus tracks a Stripe event through ingestion.
type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusProcessing WebhookEventStatus = "processing"
	WebhookEventStatusProcessed  WebhookEventStatus = "processed"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
	WebhookEventStatusIgnored    WebhookEventStatus = "ignored"
)

var validWebhookEventStatuses = []WebhookEventStatus{
	WebhookEventStatusPending,
	WebhookEventStatusProcessing,
	WebhookEventStatusProcessed,
	WebhookEventStatusFailed,
	WebhookEventStatusIgnored,
}

// String implements fmt.Stringer.
func (v WebhookEventStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v WebhookEventStatus) IsValid() bool {
	for _, candidate := range validWebhookEventStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseWebhookEventStatus converts raw input into a WebhookEventStatus.
func ParseWebhookEventStatus(value string) (WebhookEventStatus, error) {
	for _, candidate := range validWebhookEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event status %q", value)
}
