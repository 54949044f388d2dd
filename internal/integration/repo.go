package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// Repository manages persistence for integration events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.IntegrationEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.IntegrationEvent, error)
	GetByProviderRef(ctx context.Context, provider, externalRef string) (*models.IntegrationEvent, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.IntegrationEvent, error)
	Claim(ctx context.Context, event *models.IntegrationEvent, workerID string, now time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, event *models.IntegrationEvent, response json.RawMessage) error
	MarkRetrying(ctx context.Context, event *models.IntegrationEvent, lastError string, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, event *models.IntegrationEvent, lastError string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an integration event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.IntegrationEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.IntegrationEvent, error) {
	var event models.IntegrationEvent
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) GetByProviderRef(ctx context.Context, provider, externalRef string) (*models.IntegrationEvent, error) {
	var event models.IntegrationEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND external_ref = ?", provider, externalRef).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ListDue returns events whose retry window has elapsed, oldest first.
func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.IntegrationEvent, error) {
	var events []models.IntegrationEvent
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND next_retry_at <= ?", []enums.IntegrationEventStatus{
			enums.IntegrationEventStatusPending,
			enums.IntegrationEventStatusRetrying,
		}, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// staleClaimAfter is how long a claim shields a row from other workers.
// Handlers run under a timeout far below this, so a claim this old belongs
// to a crashed process and the row is up for grabs again.
const staleClaimAfter = 10 * time.Minute

// Claim stamps the worker onto the row with a conditional update. A zero
// rows-affected result means another worker holds a live claim on the event;
// the caller skips it.
func (r *repository) Claim(ctx context.Context, event *models.IntegrationEvent, workerID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationEvent{}).
		Where("id = ? AND status IN ? AND next_retry_at <= ? AND (claimed_by IS NULL OR claimed_at < ?)",
			event.ID,
			[]enums.IntegrationEventStatus{
				enums.IntegrationEventStatusPending,
				enums.IntegrationEventStatusRetrying,
			},
			now,
			now.Add(-staleClaimAfter),
		).
		Updates(map[string]any{
			"claimed_by": workerID,
			"claimed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	event.ClaimedBy = &workerID
	claimedAt := now
	event.ClaimedAt = &claimedAt
	return true, nil
}

func (r *repository) MarkSucceeded(ctx context.Context, event *models.IntegrationEvent, response json.RawMessage) error {
	values := map[string]any{
		"status":     enums.IntegrationEventStatusSucceeded,
		"last_error": nil,
		"claimed_by": nil,
		"claimed_at": nil,
	}
	if len(response) > 0 {
		values["response"] = response
	}
	if err := r.db.WithContext(ctx).
		Model(&models.IntegrationEvent{}).
		Where("id = ?", event.ID).
		Updates(values).Error; err != nil {
		return err
	}
	event.Status = enums.IntegrationEventStatusSucceeded
	event.Response = response
	event.LastError = nil
	event.ClaimedBy = nil
	event.ClaimedAt = nil
	return nil
}

// MarkRetrying increments the retry count and schedules the next attempt.
func (r *repository) MarkRetrying(ctx context.Context, event *models.IntegrationEvent, lastError string, nextRetryAt time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&models.IntegrationEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"status":        enums.IntegrationEventStatusRetrying,
			"retry_count":   event.RetryCount + 1,
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
			"claimed_by":    nil,
			"claimed_at":    nil,
		}).Error; err != nil {
		return err
	}
	event.Status = enums.IntegrationEventStatusRetrying
	event.RetryCount++
	event.NextRetryAt = nextRetryAt
	event.LastError = &lastError
	event.ClaimedBy = nil
	event.ClaimedAt = nil
	return nil
}

// MarkFailed moves the event to its terminal failure state.
func (r *repository) MarkFailed(ctx context.Context, event *models.IntegrationEvent, lastError string) error {
	if err := r.db.WithContext(ctx).
		Model(&models.IntegrationEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"status":     enums.IntegrationEventStatusFailed,
			"last_error": lastError,
			"claimed_by": nil,
			"claimed_at": nil,
		}).Error; err != nil {
		return err
	}
	event.Status = enums.IntegrationEventStatusFailed
	event.LastError = &lastError
	event.ClaimedBy = nil
	event.ClaimedAt = nil
	return nil
}
