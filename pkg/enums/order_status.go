package enums

import "fmt"

// OrderStatus tracks the lifecycle of a freight order.
type OrderStatus string

const (
	OrderStatusApprovalPending OrderStatus = "approval_pending"
	OrderStatusRegistering     OrderStatus = "registering"
	OrderStatusMatching        OrderStatus = "matching"
	OrderStatusScheduled       OrderStatus = "scheduled"
	OrderStatusWorking         OrderStatus = "working"
	OrderStatusClosed          OrderStatus = "closed"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusApprovalPending,
	OrderStatusRegistering,
	OrderStatusMatching,
	OrderStatusScheduled,
	OrderStatusWorking,
	OrderStatusClosed,
	OrderStatusCancelled,
}

// legacyOrderStatusAliases maps the status names used by older clients onto
// the canonical enum. Translation happens once at the boundary, in
// ParseOrderStatus; business logic only ever sees canonical values.
var legacyOrderStatusAliases = map[string]OrderStatus{
	"waiting":  OrderStatusApprovalPending,
	"register": OrderStatusRegistering,
	"matched":  OrderStatusScheduled,
	"doing":    OrderStatusWorking,
	"done":     OrderStatusClosed,
	"cancel":   OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known canonical OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusClosed || s == OrderStatusCancelled
}

// ParseOrderStatus converts raw input into a canonical OrderStatus,
// translating legacy aliases.
func ParseOrderStatus(value string) (OrderStatus, error) {
	if alias, ok := legacyOrderStatusAliases[value]; ok {
		return alias, nil
	}
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
