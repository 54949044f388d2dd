package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// IntegrationEvent records one inbound/outbound external-system attempt.
// Mutated only by the reconcile worker after creation; ClaimedBy/ClaimedAt
// implement the conditional-update claim that keeps multi-process workers
// from racing the same row.
type IntegrationEvent struct {
	ID          uuid.UUID                       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider    string                          `gorm:"column:provider;type:text;not null"`
	Direction   enums.IntegrationEventDirection `gorm:"column:direction;type:text;not null"`
	ExternalRef *string                         `gorm:"column:external_ref"`
	OrderID     *uuid.UUID                      `gorm:"column:order_id;type:uuid"`
	Payload     json.RawMessage                 `gorm:"column:payload;type:jsonb;not null"`
	Status      enums.IntegrationEventStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	RetryCount  int                             `gorm:"column:retry_count;not null;default:0"`
	NextRetryAt time.Time                       `gorm:"column:next_retry_at;not null"`
	LastError   *string                         `gorm:"column:last_error"`
	Response    json.RawMessage                 `gorm:"column:response;type:jsonb"`
	ClaimedBy   *string                         `gorm:"column:claimed_by"`
	ClaimedAt   *time.Time                      `gorm:"column:claimed_at"`
	CreatedAt   time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}
