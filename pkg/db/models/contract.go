package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// Contract binds one order to its accepted helper.
// Invariant: BalanceAmount = FinalAmount - DepositAmount, never negative.
type Contract struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	HelperID       uuid.UUID            `gorm:"column:helper_id;type:uuid;not null"`
	Status         enums.ContractStatus `gorm:"column:status;type:text;not null;default:'active'"`
	DepositAmount  int64                `gorm:"column:deposit_amount;not null"`
	BalanceAmount  int64                `gorm:"column:balance_amount;not null"`
	FinalAmount    int64                `gorm:"column:final_amount;not null"`
	DepositPaid    bool                 `gorm:"column:deposit_paid;not null;default:false"`
	DepositPaidAt  *time.Time           `gorm:"column:deposit_paid_at"`
	BalancePaid    bool                 `gorm:"column:balance_paid;not null;default:false"`
	BalancePaidAt  *time.Time           `gorm:"column:balance_paid_at"`
	GatewayPayment *string              `gorm:"column:gateway_payment_id"`
	ClosedAt       *time.Time           `gorm:"column:closed_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
