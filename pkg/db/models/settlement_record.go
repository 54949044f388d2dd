package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// SettlementRecord is the authoritative financial outcome for one order.
// Invariants: FinalTotal = SupplyAmount + VATAmount and
// DriverPayout = FinalTotal - PlatformFee - DamageDeduction >= 0.
type SettlementRecord struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Status          enums.SettlementStatus `gorm:"column:status;type:text;not null;default:'calculated'"`
	SupplyAmount    int64                  `gorm:"column:supply_amount;not null"`
	VATAmount       int64                  `gorm:"column:vat_amount;not null"`
	FinalTotal      int64                  `gorm:"column:final_total;not null"`
	PlatformFee     int64                  `gorm:"column:platform_fee;not null"`
	DamageDeduction int64                  `gorm:"column:damage_deduction;not null;default:0"`
	DriverPayout    int64                  `gorm:"column:driver_payout;not null"`
	ApprovedAt      *time.Time             `gorm:"column:approved_at"`
	PaidAt          *time.Time             `gorm:"column:paid_at"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
