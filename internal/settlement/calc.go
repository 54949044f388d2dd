package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/db/types"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
)

// CalcInput is the complete evidence and policy needed to settle one order.
// Counts come from the approved closing report, rates from the order's policy
// snapshot. DamageDeduction is zero except when a dispute resolution applies
// one.
type CalcInput struct {
	DeliveredCount  int64
	ReturnedCount   int64
	EtcCount        int64
	UnitPrice       int64
	ExtraCosts      types.ExtraCosts
	Urgent          bool
	Snapshot        *models.PolicySnapshot
	DamageDeduction int64
}

// CalcResult carries the settlement figures in KRW.
type CalcResult struct {
	SupplyAmount    int64
	VATAmount       int64
	FinalTotal      int64
	PlatformFee     int64
	DamageDeduction int64
	DriverPayout    int64
}

// Calculate computes the settlement for one order. It is pure and
// deterministic: the same input always reproduces the same figures, which is
// what lets a recomputation stand in for a missing stored record.
//
// Rounding happens exactly twice, half-up, at the VAT step and at the fee
// step. Everything before those steps is exact integer or decimal arithmetic,
// so repeated recalculation cannot drift.
func Calculate(input CalcInput) (CalcResult, error) {
	if input.Snapshot == nil {
		return CalcResult{}, pkgerrors.New(pkgerrors.CodeValidation, "policy snapshot is required")
	}
	if input.DeliveredCount < 0 || input.ReturnedCount < 0 || input.EtcCount < 0 {
		return CalcResult{}, pkgerrors.New(pkgerrors.CodeValidation, "closing counts must not be negative").
			WithDetails(map[string]any{
				"delivered": input.DeliveredCount,
				"returned":  input.ReturnedCount,
				"etc":       input.EtcCount,
			})
	}
	if input.UnitPrice <= 0 {
		return CalcResult{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
	}
	if input.DamageDeduction < 0 {
		return CalcResult{}, pkgerrors.New(pkgerrors.CodeValidation, "damage deduction must not be negative")
	}
	for _, cost := range input.ExtraCosts {
		if cost.Quantity < 0 || cost.UnitPrice < 0 {
			return CalcResult{}, pkgerrors.New(pkgerrors.CodeValidation, "extra cost items must not be negative").
				WithDetails(map[string]any{"item": cost.Name})
		}
	}

	snap := input.Snapshot

	// Steps 1-2: billable volume at the snapshot unit price.
	billableCount := input.DeliveredCount + input.ReturnedCount + input.EtcCount
	baseSupply := billableCount * input.UnitPrice

	// Step 3: urgency surcharge on the base supply, capped when the policy
	// carries a maximum.
	var urgentFeeSupply int64
	if input.Urgent {
		urgentFeeSupply = decimal.NewFromInt(baseSupply).Mul(snap.UrgentFeeRate).Round(0).IntPart()
		if snap.UrgentFeeMax != nil && urgentFeeSupply > *snap.UrgentFeeMax {
			urgentFeeSupply = *snap.UrgentFeeMax
		}
	}

	// Step 4: itemized extras.
	extraSupply := input.ExtraCosts.Total()

	// Step 5: supply, then the minimum-guarantee floor. The guarantee is
	// expressed on the VAT-inclusive total, so the floor works backwards from
	// it and never lowers a supply that already clears it.
	supplyAmount := baseSupply + urgentFeeSupply + extraSupply
	vatFactor := decimal.NewFromInt(1).Add(snap.VATRate)
	if snap.MinGuaranteeTotal != nil {
		guarantee := *snap.MinGuaranteeTotal
		projected := decimal.NewFromInt(supplyAmount).Mul(vatFactor)
		if projected.LessThan(decimal.NewFromInt(guarantee)) {
			supplyAmount = decimal.NewFromInt(guarantee).Div(vatFactor).Round(0).IntPart()
			// Integer division can undershoot the guarantee by one unit once
			// VAT rounding is applied; bump until the total clears it.
			for finalFor(supplyAmount, snap.VATRate) < guarantee {
				supplyAmount++
			}
		}
	}

	// Step 6: VAT rounds half-up exactly once.
	vatAmount := decimal.NewFromInt(supplyAmount).Mul(snap.VATRate).Round(0).IntPart()
	finalTotal := supplyAmount + vatAmount

	// Step 7: platform fee on the configured base, rounded half-up once and
	// clamped to the policy's fee bounds.
	feeBase := finalTotal
	if snap.CommissionBase == enums.CommissionBaseSupply {
		feeBase = supplyAmount
	}
	platformFee := decimal.NewFromInt(feeBase).Mul(snap.CommissionRate).Round(0).IntPart()
	if snap.MinPlatformFee != nil && platformFee < *snap.MinPlatformFee {
		platformFee = *snap.MinPlatformFee
	}
	if snap.MaxPlatformFee != nil && platformFee > *snap.MaxPlatformFee {
		platformFee = *snap.MaxPlatformFee
	}

	// Step 8: payout. A negative payout means the policy or the evidence is
	// wrong; that needs a human, never silent truncation.
	driverPayout := finalTotal - platformFee - input.DamageDeduction
	if driverPayout < 0 {
		return CalcResult{}, pkgerrors.New(pkgerrors.CodeSettlementInvariant, "computed driver payout is negative").
			WithDetails(map[string]any{
				"finalTotal":      finalTotal,
				"platformFee":     platformFee,
				"damageDeduction": input.DamageDeduction,
				"driverPayout":    driverPayout,
			})
	}

	return CalcResult{
		SupplyAmount:    supplyAmount,
		VATAmount:       vatAmount,
		FinalTotal:      finalTotal,
		PlatformFee:     platformFee,
		DamageDeduction: input.DamageDeduction,
		DriverPayout:    driverPayout,
	}, nil
}

func finalFor(supply int64, vatRate decimal.Decimal) int64 {
	vat := decimal.NewFromInt(supply).Mul(vatRate).Round(0).IntPart()
	return supply + vat
}
