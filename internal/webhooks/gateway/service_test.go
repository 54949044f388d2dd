package gatewaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	"github.com/cargolink/cargolink-backend/internal/integration"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/logger"
)

type fakeEventRepo struct {
	created   []*models.IntegrationEvent
	existing  *models.IntegrationEvent
	succeeded int
}

func (f *fakeEventRepo) WithTx(*gorm.DB) integration.Repository { return f }

func (f *fakeEventRepo) Create(_ context.Context, event *models.IntegrationEvent) error {
	if f.existing != nil {
		return errors.New("duplicate key value violates unique constraint")
	}
	f.created = append(f.created, event)
	return nil
}

func (f *fakeEventRepo) GetByID(context.Context, uuid.UUID) (*models.IntegrationEvent, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEventRepo) GetByProviderRef(context.Context, string, string) (*models.IntegrationEvent, error) {
	if f.existing == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.existing, nil
}

func (f *fakeEventRepo) ListDue(context.Context, time.Time, int) ([]models.IntegrationEvent, error) {
	return nil, nil
}

func (f *fakeEventRepo) Claim(context.Context, *models.IntegrationEvent, string, time.Time) (bool, error) {
	return false, nil
}

func (f *fakeEventRepo) MarkSucceeded(context.Context, *models.IntegrationEvent, json.RawMessage) error {
	f.succeeded++
	return nil
}

func (f *fakeEventRepo) MarkRetrying(context.Context, *models.IntegrationEvent, string, time.Time) error {
	return nil
}

func (f *fakeEventRepo) MarkFailed(context.Context, *models.IntegrationEvent, string) error {
	return nil
}

type fakeContracts struct {
	recorded []string
	err      error
}

func (f *fakeContracts) Get(context.Context, uuid.UUID) (*models.Contract, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeContracts) GetByOrderID(context.Context, uuid.UUID) (*models.Contract, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeContracts) RecordPayment(_ context.Context, _ audit.Actor, contractID uuid.UUID, phase contracts.PaymentPhase, paymentID string) (*models.Contract, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.recorded = append(f.recorded, contractID.String()+":"+string(phase)+":"+paymentID)
	return &models.Contract{ID: contractID}, nil
}

func newTestService(t *testing.T, events *fakeEventRepo, contractsSvc *fakeContracts) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Events:    events,
		Contracts: contractsSvc,
		Logger:    logger.New(logger.Options{ServiceName: "webhook-test"}),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func completedEvent(contractID uuid.UUID) *WebhookEvent {
	return &WebhookEvent{
		EventID: "evt-1",
		Type:    "payment.updated",
		Data: WebhookData{
			Object: WebhookObject{
				Payment: &WebhookPayment{
					ID:          "pay_abc",
					Status:      "COMPLETED",
					ReferenceID: contractID.String() + ":deposit",
				},
			},
		},
	}
}

func TestHandleEventRecordsAndSettles(t *testing.T) {
	contractID := uuid.New()
	events := &fakeEventRepo{}
	contractsSvc := &fakeContracts{}
	svc := newTestService(t, events, contractsSvc)

	if err := svc.HandleEvent(context.Background(), completedEvent(contractID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if len(events.created) != 1 {
		t.Fatalf("created %d event rows, want 1", len(events.created))
	}
	if events.created[0].Provider != integration.ProviderGatewayPayment {
		t.Errorf("provider = %s, want %s", events.created[0].Provider, integration.ProviderGatewayPayment)
	}
	if len(contractsSvc.recorded) != 1 {
		t.Fatalf("recorded %d payments, want 1", len(contractsSvc.recorded))
	}
	if events.succeeded != 1 {
		t.Fatalf("marked succeeded %d times, want 1", events.succeeded)
	}
}

func TestHandleEventLeavesFailuresForWorker(t *testing.T) {
	contractID := uuid.New()
	events := &fakeEventRepo{}
	contractsSvc := &fakeContracts{err: errors.New("db unavailable")}
	svc := newTestService(t, events, contractsSvc)

	// A synchronous processing failure is not a webhook failure: the row is
	// recorded and the worker finishes the job.
	if err := svc.HandleEvent(context.Background(), completedEvent(contractID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(events.created) != 1 {
		t.Fatalf("created %d event rows, want 1", len(events.created))
	}
	if events.succeeded != 0 {
		t.Fatal("failed processing must not mark the event succeeded")
	}
}

func TestHandleEventDeduplicatesRedelivery(t *testing.T) {
	contractID := uuid.New()
	existing := &models.IntegrationEvent{
		ID:       uuid.New(),
		Provider: integration.ProviderGatewayPayment,
		Status:   enums.IntegrationEventStatusSucceeded,
	}
	events := &fakeEventRepo{existing: existing}
	contractsSvc := &fakeContracts{}
	svc := newTestService(t, events, contractsSvc)

	if err := svc.HandleEvent(context.Background(), completedEvent(contractID)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(contractsSvc.recorded) != 0 {
		t.Fatal("terminal event must not be reprocessed")
	}
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	events := &fakeEventRepo{}
	svc := newTestService(t, events, &fakeContracts{})

	err := svc.HandleEvent(context.Background(), &WebhookEvent{EventID: "evt-2", Type: "refund.created"})
	if err != nil {
		t.Fatalf("unrelated types must be acknowledged: %v", err)
	}
	if len(events.created) != 0 {
		t.Fatal("unrelated types must not create event rows")
	}
}

func TestHandleEventRejectsMalformedReference(t *testing.T) {
	event := completedEvent(uuid.New())
	event.Data.Object.Payment.ReferenceID = "not-a-reference"
	svc := newTestService(t, &fakeEventRepo{}, &fakeContracts{})

	err := svc.HandleEvent(context.Background(), event)
	if err == nil {
		t.Fatal("malformed reference must fail")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestHandleEventPendingPaymentWaitsForWorker(t *testing.T) {
	contractID := uuid.New()
	event := completedEvent(contractID)
	event.Data.Object.Payment.Status = "PENDING"
	events := &fakeEventRepo{}
	contractsSvc := &fakeContracts{}
	svc := newTestService(t, events, contractsSvc)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(events.created) != 1 {
		t.Fatalf("created %d event rows, want 1", len(events.created))
	}
	if len(contractsSvc.recorded) != 0 {
		t.Fatal("pending payment must not settle synchronously")
	}
}
