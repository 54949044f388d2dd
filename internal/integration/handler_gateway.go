package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
)

// paymentFetcher is the slice of the gateway client the handler needs.
type paymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// GatewayPaymentHandler reconciles a contract installment against the payment
// gateway: fetch the payment's authoritative status and flip the paid flags
// when it completed. Replaying is safe because payment recording is
// idempotent per phase.
type GatewayPaymentHandler struct {
	gateway   paymentFetcher
	contracts contracts.Service
}

// NewGatewayPaymentHandler builds the gateway.payment handler.
func NewGatewayPaymentHandler(gateway paymentFetcher, contractService contracts.Service) (*GatewayPaymentHandler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if contractService == nil {
		return nil, fmt.Errorf("contract service required")
	}
	return &GatewayPaymentHandler{gateway: gateway, contracts: contractService}, nil
}

// Provider implements Handler.
func (h *GatewayPaymentHandler) Provider() string {
	return ProviderGatewayPayment
}

// Handle implements Handler.
func (h *GatewayPaymentHandler) Handle(ctx context.Context, event *models.IntegrationEvent) (json.RawMessage, error) {
	var payload GatewayPaymentPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed gateway payment payload")
	}
	if payload.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment payload missing payment id")
	}

	payment, err := h.gateway.GetPayment(ctx, payload.PaymentID)
	if err != nil {
		return nil, err
	}

	status := strings.ToUpper(paymentStatus(payment))
	switch status {
	case "COMPLETED", "APPROVED":
		phase, err := contracts.ParsePaymentPhase(payload.Phase)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "gateway payment payload has unknown phase")
		}
		if _, err := h.contracts.RecordPayment(ctx, audit.SystemActor, payload.ContractID, phase, payload.PaymentID); err != nil {
			return nil, err
		}
	case "PENDING":
		// Not settled gateway-side yet; fail the attempt so the backoff
		// schedule polls again.
		return nil, pkgerrors.New(pkgerrors.CodeIntegration, "gateway payment still pending").
			WithDetails(map[string]any{"paymentId": payload.PaymentID})
	default:
		// FAILED / CANCELED: the reconciliation itself succeeded, the
		// payment just never happened. Record what the gateway said and stop
		// polling.
	}

	return json.Marshal(map[string]string{
		"paymentId": payload.PaymentID,
		"status":    status,
	})
}

func paymentStatus(payment *sq.Payment) string {
	if payment == nil || payment.Status == nil {
		return ""
	}
	return *payment.Status
}
