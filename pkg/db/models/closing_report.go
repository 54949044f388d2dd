package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/db/types"
)

// ClosingReport is the helper's declared delivery evidence for one order.
// It becomes immutable once approved; admins may correct it afterwards only
// through the correction path, which records a reason and an audit entry.
type ClosingReport struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID        `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	HelperID         uuid.UUID        `gorm:"column:helper_id;type:uuid;not null"`
	DeliveredCount   int64            `gorm:"column:delivered_count;not null"`
	ReturnedCount    int64            `gorm:"column:returned_count;not null;default:0"`
	EtcCount         int64            `gorm:"column:etc_count;not null;default:0"`
	ExtraCosts       types.ExtraCosts `gorm:"column:extra_costs;type:jsonb;serializer:json"`
	PhotoRefs        types.PhotoRefs  `gorm:"column:photo_refs;type:jsonb;serializer:json"`
	Approved         bool             `gorm:"column:approved;not null;default:false"`
	ApprovedAt       *time.Time       `gorm:"column:approved_at"`
	ApprovedBy       *uuid.UUID       `gorm:"column:approved_by;type:uuid"`
	CorrectedBy      *uuid.UUID       `gorm:"column:corrected_by;type:uuid"`
	CorrectionReason *string          `gorm:"column:correction_reason"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
