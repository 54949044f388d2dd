package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cargolink/cargolink-backend/pkg/config"
	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// Rules is the platform pricing policy in force right now. Orders copy it
// into an immutable PolicySnapshot at registration.
type Rules struct {
	Version           int
	CommissionBase    enums.CommissionBase
	CommissionRate    decimal.Decimal
	UrgentFeeRate     decimal.Decimal
	UrgentFeeMax      int64
	VATRate           decimal.Decimal
	MinGuaranteeTotal int64
	MinPlatformFee    int64
	MaxPlatformFee    int64
}

// RulesFromConfig parses and validates the configured policy values.
func RulesFromConfig(cfg config.PolicyConfig) (Rules, error) {
	base, err := enums.ParseCommissionBase(cfg.CommissionBase)
	if err != nil {
		return Rules{}, err
	}

	commissionRate, err := parseRate("commission rate", cfg.CommissionRate)
	if err != nil {
		return Rules{}, err
	}
	urgentFeeRate, err := parseRate("urgent fee rate", cfg.UrgentFeeRate)
	if err != nil {
		return Rules{}, err
	}
	vatRate, err := parseRate("vat rate", cfg.VATRate)
	if err != nil {
		return Rules{}, err
	}

	if cfg.Version <= 0 {
		return Rules{}, fmt.Errorf("policy version must be positive")
	}
	for name, v := range map[string]int64{
		"urgent fee max":      cfg.UrgentFeeMax,
		"min guarantee total": cfg.MinGuaranteeTotal,
		"min platform fee":    cfg.MinPlatformFee,
		"max platform fee":    cfg.MaxPlatformFee,
	} {
		if v < 0 {
			return Rules{}, fmt.Errorf("%s must not be negative", name)
		}
	}
	if cfg.MaxPlatformFee > 0 && cfg.MinPlatformFee > cfg.MaxPlatformFee {
		return Rules{}, fmt.Errorf("min platform fee exceeds max platform fee")
	}

	return Rules{
		Version:           cfg.Version,
		CommissionBase:    base,
		CommissionRate:    commissionRate,
		UrgentFeeRate:     urgentFeeRate,
		UrgentFeeMax:      cfg.UrgentFeeMax,
		VATRate:           vatRate,
		MinGuaranteeTotal: cfg.MinGuaranteeTotal,
		MinPlatformFee:    cfg.MinPlatformFee,
		MaxPlatformFee:    cfg.MaxPlatformFee,
	}, nil
}

func parseRate(name, raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s %q: %w", name, raw, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s %q out of range [0,1]", name, raw)
	}
	return rate, nil
}
