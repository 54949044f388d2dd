package integration

import (
	"context"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
)

// notificationPublisher is the slice of the Pub/Sub client the handler needs.
type notificationPublisher interface {
	PublishNotification(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// NotifyPublishHandler pushes outbound notification events onto the Pub/Sub
// topic. Downstream delivery (SMS, push) is someone else's problem; the
// publish is the contract.
type NotifyPublishHandler struct {
	publisher notificationPublisher
}

// NewNotifyPublishHandler builds the notify.publish handler.
func NewNotifyPublishHandler(publisher notificationPublisher) (*NotifyPublishHandler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	return &NotifyPublishHandler{publisher: publisher}, nil
}

// Provider implements Handler.
func (h *NotifyPublishHandler) Provider() string {
	return ProviderNotifyPublish
}

// Handle implements Handler. The event id travels as a message attribute so
// consumers can dedupe republished events.
func (h *NotifyPublishHandler) Handle(ctx context.Context, event *models.IntegrationEvent) (json.RawMessage, error) {
	serverID, err := h.publisher.PublishNotification(ctx, event.Payload, map[string]string{
		"eventId": event.ID.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegration, err, "publishing notification failed")
	}
	return json.Marshal(map[string]string{"messageId": serverID})
}
