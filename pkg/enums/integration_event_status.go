package enums

import "fmt"

// IntegrationEventStatus tracks one external-system reconciliation attempt.
type IntegrationEventStatus string

const (
	IntegrationEventStatusPending   IntegrationEventStatus = "pending"
	IntegrationEventStatusRetrying  IntegrationEventStatus = "retrying"
	IntegrationEventStatusFailed    IntegrationEventStatus = "failed"
	IntegrationEventStatusSucceeded IntegrationEventStatus = "succeeded"
)

var validIntegrationEventStatuses = []IntegrationEventStatus{
	IntegrationEventStatusPending,
	IntegrationEventStatusRetrying,
	IntegrationEventStatusFailed,
	IntegrationEventStatusSucceeded,
}

// String implements fmt.Stringer.
func (s IntegrationEventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IntegrationEventStatus.
func (s IntegrationEventStatus) IsValid() bool {
	for _, candidate := range validIntegrationEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the reconcile worker will touch the event again.
func (s IntegrationEventStatus) IsTerminal() bool {
	return s == IntegrationEventStatusSucceeded || s == IntegrationEventStatusFailed
}

// ParseIntegrationEventStatus converts raw input into an IntegrationEventStatus.
func ParseIntegrationEventStatus(value string) (IntegrationEventStatus, error) {
	for _, candidate := range validIntegrationEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid integration event status %q", value)
}

// IntegrationEventDirection distinguishes inbound webhooks from outbound notifications.
type IntegrationEventDirection string

const (
	IntegrationEventInbound  IntegrationEventDirection = "inbound"
	IntegrationEventOutbound IntegrationEventDirection = "outbound"
)
