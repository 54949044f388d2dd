package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// Order represents one freight job from registration to financial close.
// Status only moves through the lifecycle state machine; rows are never
// hard-deleted. Version backs the optimistic concurrency check that
// serializes concurrent transitions on the same order.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequesterID      uuid.UUID         `gorm:"column:requester_id;type:uuid;not null"`
	HelperID         *uuid.UUID        `gorm:"column:helper_id;type:uuid"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;default:'approval_pending'"`
	UnitPrice        int64             `gorm:"column:unit_price;not null"`
	Quantity         int               `gorm:"column:quantity;not null"`
	Urgent           bool              `gorm:"column:urgent;not null;default:false"`
	PolicySnapshotID *uuid.UUID        `gorm:"column:policy_snapshot_id;type:uuid"`
	Version          int64             `gorm:"column:version;not null;default:0"`
	Notes            *string           `gorm:"column:notes"`
	RegisteredAt     *time.Time        `gorm:"column:registered_at"`
	MatchedAt        *time.Time        `gorm:"column:matched_at"`
	ScheduledAt      *time.Time        `gorm:"column:scheduled_at"`
	WorkStartedAt    *time.Time        `gorm:"column:work_started_at"`
	ClosedAt         *time.Time        `gorm:"column:closed_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	Contract         *Contract         `gorm:"foreignKey:OrderID"`
	ClosingReport    *ClosingReport    `gorm:"foreignKey:OrderID"`
	Settlement       *SettlementRecord `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
