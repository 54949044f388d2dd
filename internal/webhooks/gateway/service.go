package gatewaywebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	"github.com/cargolink/cargolink-backend/internal/integration"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/logger"
	"time"
)

// WebhookEvent is the gateway's payment notification envelope.
type WebhookEvent struct {
	EventID string      `json:"event_id"`
	Type    string      `json:"type"`
	Data    WebhookData `json:"data"`
}

type WebhookData struct {
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Object WebhookObject `json:"object"`
}

type WebhookObject struct {
	Payment *WebhookPayment `json:"payment"`
}

// WebhookPayment carries the fields the engine cares about. ReferenceID is
// the "<contractID>:<phase>" tag stamped onto the payment at creation.
type WebhookPayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	ReferenceID string `json:"reference_id"`
}

// ServiceParams wire the gateway webhook service.
type ServiceParams struct {
	Events    integration.Repository
	Contracts contracts.Service
	Logger    *logger.Logger
	Now       func() time.Time
}

// Service turns gateway payment notifications into integration events.
// The row is recorded first so the evidence survives even when synchronous
// processing fails; the reconcile worker picks up whatever is left.
type Service struct {
	events    integration.Repository
	contracts contracts.Service
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "integration repository required")
	}
	if params.Contracts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "contract service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		events:    params.Events,
		contracts: params.Contracts,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// HandleEvent records and, when possible, immediately settles a payment
// notification.
func (s *Service) HandleEvent(ctx context.Context, event *WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		// Unhandled event types are acknowledged so the gateway stops
		// redelivering them.
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil || payment.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	contractID, phase, err := parseReference(payment.ReferenceID)
	if err != nil {
		return err
	}

	row, err := s.recordEvent(ctx, payment, contractID, phase)
	if err != nil {
		return err
	}
	if row.Status.IsTerminal() {
		return nil
	}

	// Best-effort synchronous settle: only a COMPLETED payment can flip the
	// paid flags; anything else stays with the worker.
	if !strings.EqualFold(payment.Status, "COMPLETED") {
		return nil
	}
	if _, err := s.contracts.RecordPayment(ctx, audit.SystemActor, contractID, phase, payment.ID); err != nil {
		s.logg.Error(ctx, "synchronous payment processing failed; leaving event for the worker", err)
		return nil
	}
	if err := s.events.MarkSucceeded(ctx, row, nil); err != nil {
		s.logg.Error(ctx, "marking webhook event succeeded failed", err)
	}
	return nil
}

// recordEvent persists the integration event, tolerating redelivery: when
// the (provider, external_ref) row already exists it is reused.
func (s *Service) recordEvent(ctx context.Context, payment *WebhookPayment, contractID uuid.UUID, phase contracts.PaymentPhase) (*models.IntegrationEvent, error) {
	var orderID uuid.UUID
	if payment.OrderID != "" {
		if parsed, err := uuid.Parse(payment.OrderID); err == nil {
			orderID = parsed
		}
	}

	row, err := integration.NewGatewayPaymentEvent(orderID, contractID, payment.ID, string(phase), s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "building integration event")
	}
	if err := s.events.Create(ctx, row); err != nil {
		if db.IsUniqueViolation(err) {
			return s.events.GetByProviderRef(ctx, integration.ProviderGatewayPayment, payment.ID)
		}
		return nil, err
	}
	return row, nil
}

func parseReference(reference string) (uuid.UUID, contracts.PaymentPhase, error) {
	parts := strings.SplitN(reference, ":", 2)
	if len(parts) != 2 {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference id malformed").
			WithDetails(map[string]any{"referenceId": reference})
	}
	contractID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment reference id has invalid contract id")
	}
	phase, err := contracts.ParsePaymentPhase(parts[1])
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment reference id has invalid phase")
	}
	return contractID, phase, nil
}
