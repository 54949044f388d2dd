package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/pagination"
)

// Service is the escalation sink for conditions that need a human operator.
type Service interface {
	NotifyIntegrationExhausted(ctx context.Context, tx *gorm.DB, event *models.IntegrationEvent) error
	NotifySettlementInvariant(ctx context.Context, orderID uuid.UUID, message string) error
	List(ctx context.Context, unreadOnly bool, params pagination.Params) ([]models.OperatorNotification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a notification service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// NotifyIntegrationExhausted records the single escalation for an event that
// burned all its retries. The unique index on integration_event_id makes the
// write idempotent: a worker crashing between retries cannot produce a second
// notification for the same event.
func (s *service) NotifyIntegrationExhausted(ctx context.Context, tx *gorm.DB, event *models.IntegrationEvent) error {
	if event == nil || event.ID == uuid.Nil {
		return fmt.Errorf("integration event is required")
	}

	eventID := event.ID
	notification := &models.OperatorNotification{
		Kind: enums.NotificationIntegrationExhausted,
		Message: fmt.Sprintf("integration event %s (provider %s) exhausted its retries after %d attempts",
			event.ID, event.Provider, event.RetryCount),
		IntegrationEventID: &eventID,
		OrderID:            event.OrderID,
	}

	err := s.repo.WithTx(tx).Create(ctx, notification)
	if db.IsUniqueViolation(err) {
		return nil
	}
	return err
}

// NotifySettlementInvariant escalates a settlement computation that violated
// a non-negotiable invariant.
func (s *service) NotifySettlementInvariant(ctx context.Context, orderID uuid.UUID, message string) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id is required")
	}
	if message == "" {
		return fmt.Errorf("message is required")
	}
	oid := orderID
	return s.repo.Create(ctx, &models.OperatorNotification{
		Kind:    enums.NotificationSettlementInvariant,
		Message: message,
		OrderID: &oid,
	})
}

func (s *service) List(ctx context.Context, unreadOnly bool, params pagination.Params) ([]models.OperatorNotification, error) {
	return s.repo.List(ctx, unreadOnly, params)
}

func (s *service) MarkRead(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id is required")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "notification not found")
		}
		return err
	}
	return s.repo.MarkRead(ctx, id, s.now().UTC())
}
