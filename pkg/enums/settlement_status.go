package enums

import "fmt"

// SettlementStatus tracks the financial outcome record for an order.
type SettlementStatus string

const (
	SettlementStatusCalculated SettlementStatus = "calculated"
	SettlementStatusApproved   SettlementStatus = "approved"
	SettlementStatusPaid       SettlementStatus = "paid"
	SettlementStatusCancelled  SettlementStatus = "cancelled"
	SettlementStatusDisputed   SettlementStatus = "disputed"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusCalculated,
	SettlementStatusApproved,
	SettlementStatusPaid,
	SettlementStatusCancelled,
	SettlementStatusDisputed,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementStatus.
func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}
