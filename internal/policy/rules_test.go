package policy

import (
	"testing"

	"github.com/cargolink/cargolink-backend/pkg/config"
	"github.com/cargolink/cargolink-backend/pkg/enums"
)

func validPolicyConfig() config.PolicyConfig {
	return config.PolicyConfig{
		Version:        1,
		CommissionBase: "total",
		CommissionRate: "0.10",
		UrgentFeeRate:  "0.20",
		VATRate:        "0.10",
	}
}

func TestRulesFromConfig(t *testing.T) {
	rules, err := RulesFromConfig(validPolicyConfig())
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	if rules.Version != 1 {
		t.Errorf("version = %d, want 1", rules.Version)
	}
	if rules.CommissionBase != enums.CommissionBaseTotal {
		t.Errorf("commission base = %s, want total", rules.CommissionBase)
	}
	if rules.CommissionRate.String() != "0.1" {
		t.Errorf("commission rate = %s, want 0.1", rules.CommissionRate)
	}
}

func TestRulesFromConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.PolicyConfig){
		"unknown commission base": func(c *config.PolicyConfig) { c.CommissionBase = "net" },
		"rate above one":          func(c *config.PolicyConfig) { c.CommissionRate = "1.5" },
		"negative rate":           func(c *config.PolicyConfig) { c.VATRate = "-0.1" },
		"unparseable rate":        func(c *config.PolicyConfig) { c.UrgentFeeRate = "twenty" },
		"zero version":            func(c *config.PolicyConfig) { c.Version = 0 },
		"negative guarantee":      func(c *config.PolicyConfig) { c.MinGuaranteeTotal = -1 },
		"min fee above max": func(c *config.PolicyConfig) {
			c.MinPlatformFee = 5000
			c.MaxPlatformFee = 1000
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validPolicyConfig()
			mutate(&cfg)
			if _, err := RulesFromConfig(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
