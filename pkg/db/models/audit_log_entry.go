package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// AuditLogEntry is the immutable record of one state-changing action.
// Append-only: no update or delete path exists.
type AuditLogEntry struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ActorID     uuid.UUID         `gorm:"column:actor_id;type:uuid;not null"`
	ActorRole   string            `gorm:"column:actor_role;type:text;not null"`
	Action      enums.AuditAction `gorm:"column:action;type:text;not null"`
	TargetType  string            `gorm:"column:target_type;type:text;not null"`
	TargetID    uuid.UUID         `gorm:"column:target_id;type:uuid;not null"`
	BeforeValue json.RawMessage   `gorm:"column:before_value;type:jsonb"`
	AfterValue  json.RawMessage   `gorm:"column:after_value;type:jsonb"`
	Reason      *string           `gorm:"column:reason"`
	ClientIP    *string           `gorm:"column:client_ip"`
	UserAgent   *string           `gorm:"column:user_agent"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
