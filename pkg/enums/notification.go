package enums

// OperatorNotificationKind classifies operator-facing escalations.
type OperatorNotificationKind string

const (
	// NotificationIntegrationExhausted signals an integration event that
	// exhausted its retries and needs a human.
	NotificationIntegrationExhausted OperatorNotificationKind = "integration.exhausted"
	// NotificationSettlementInvariant signals a settlement computation that
	// violated a non-negotiable invariant.
	NotificationSettlementInvariant OperatorNotificationKind = "settlement.invariant_violation"
)

// String implements fmt.Stringer.
func (k OperatorNotificationKind) String() string {
	return string(k)
}
