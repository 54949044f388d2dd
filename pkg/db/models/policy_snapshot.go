package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// PolicySnapshot freezes the pricing/commission rules in force when an order
// was created, so later policy changes never retroactively alter an in-flight
// order. Read-only after capture.
type PolicySnapshot struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	PolicyVersion     int                  `gorm:"column:policy_version;not null"`
	UnitPrice         int64                `gorm:"column:unit_price;not null"`
	CommissionBase    enums.CommissionBase `gorm:"column:commission_base;type:text;not null"`
	CommissionRate    decimal.Decimal      `gorm:"column:commission_rate;type:numeric(8,4);not null"`
	UrgentFeeRate     decimal.Decimal      `gorm:"column:urgent_fee_rate;type:numeric(8,4);not null"`
	UrgentFeeMax      *int64               `gorm:"column:urgent_fee_max"`
	VATRate           decimal.Decimal      `gorm:"column:vat_rate;type:numeric(8,4);not null"`
	MinGuaranteeTotal *int64               `gorm:"column:min_guarantee_total"`
	MinPlatformFee    *int64               `gorm:"column:min_platform_fee"`
	MaxPlatformFee    *int64               `gorm:"column:max_platform_fee"`
	CapturedAt        time.Time            `gorm:"column:captured_at;not null"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
}
