package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// OperatorNotification surfaces escalations that need a human decision,
// primarily integration events that exhausted their retries.
type OperatorNotification struct {
	ID                 uuid.UUID                      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind               enums.OperatorNotificationKind `gorm:"column:kind;type:text;not null"`
	Message            string                         `gorm:"column:message;type:text;not null"`
	IntegrationEventID *uuid.UUID                     `gorm:"column:integration_event_id;type:uuid;uniqueIndex"`
	OrderID            *uuid.UUID                     `gorm:"column:order_id;type:uuid"`
	ReadAt             *time.Time                     `gorm:"column:read_at"`
	CreatedAt          time.Time                      `gorm:"column:created_at;autoCreateTime"`
}
