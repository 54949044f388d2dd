package integration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
)

// Provider names. Handlers register under these and event rows carry them.
const (
	ProviderGatewayPayment = "gateway.payment"
	ProviderNotifyPublish  = "notify.publish"
)

// NotificationPayload is the body of an outbound notify.publish event.
type NotificationPayload struct {
	Type    string          `json:"type"`
	OrderID uuid.UUID       `json:"orderId"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewNotificationEvent builds an outbound notification event due immediately.
func NewNotificationEvent(orderID uuid.UUID, eventType string, data any, now time.Time) (*models.IntegrationEvent, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}

	var raw json.RawMessage
	if data != nil {
		marshaled, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshaling notification data: %w", err)
		}
		raw = marshaled
	}
	payload, err := json.Marshal(NotificationPayload{
		Type:    eventType,
		OrderID: orderID,
		Data:    raw,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling notification payload: %w", err)
	}

	oid := orderID
	return &models.IntegrationEvent{
		Provider:    ProviderNotifyPublish,
		Direction:   enums.IntegrationEventOutbound,
		OrderID:     &oid,
		Payload:     payload,
		Status:      enums.IntegrationEventStatusPending,
		NextRetryAt: now.UTC(),
	}, nil
}

// GatewayPaymentPayload is the body of a gateway.payment reconciliation event.
// PaymentID is the gateway-side payment to confirm; Phase names the contract
// installment it settles.
type GatewayPaymentPayload struct {
	PaymentID  string    `json:"paymentId"`
	ContractID uuid.UUID `json:"contractId"`
	Phase      string    `json:"phase"`
}

// NewGatewayPaymentEvent builds a payment reconciliation event due immediately.
// The gateway payment id doubles as the external ref, so the partial unique
// index dedupes repeated webhook deliveries.
func NewGatewayPaymentEvent(orderID uuid.UUID, contractID uuid.UUID, paymentID, phase string, now time.Time) (*models.IntegrationEvent, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("gateway payment id is required")
	}
	if contractID == uuid.Nil {
		return nil, fmt.Errorf("contract id is required")
	}

	payload, err := json.Marshal(GatewayPaymentPayload{
		PaymentID:  paymentID,
		ContractID: contractID,
		Phase:      phase,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling gateway payment payload: %w", err)
	}

	ref := paymentID
	event := &models.IntegrationEvent{
		Provider:    ProviderGatewayPayment,
		Direction:   enums.IntegrationEventInbound,
		ExternalRef: &ref,
		Payload:     payload,
		Status:      enums.IntegrationEventStatusPending,
		NextRetryAt: now.UTC(),
	}
	if orderID != uuid.Nil {
		oid := orderID
		event.OrderID = &oid
	}
	return event, nil
}
