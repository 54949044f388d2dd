package enums

import "fmt"

// CommissionBase selects the amount the platform fee is computed from.
type CommissionBase string

const (
	// CommissionBaseTotal applies the commission rate to the VAT-inclusive total.
	CommissionBaseTotal CommissionBase = "total"
	// CommissionBaseSupply applies the commission rate to the pre-VAT supply amount.
	CommissionBaseSupply CommissionBase = "supply"
)

// String implements fmt.Stringer.
func (b CommissionBase) String() string {
	return string(b)
}

// IsValid reports whether the value is a known CommissionBase.
func (b CommissionBase) IsValid() bool {
	return b == CommissionBaseTotal || b == CommissionBaseSupply
}

// ParseCommissionBase converts raw input into a CommissionBase.
func ParseCommissionBase(value string) (CommissionBase, error) {
	switch CommissionBase(value) {
	case CommissionBaseTotal:
		return CommissionBaseTotal, nil
	case CommissionBaseSupply:
		return CommissionBaseSupply, nil
	default:
		return "", fmt.Errorf("invalid commission base %q", value)
	}
}
