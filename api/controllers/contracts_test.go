package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/api/middleware"
	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	"github.com/cargolink/cargolink-backend/pkg/gateway"
	"github.com/cargolink/cargolink-backend/pkg/logger"
)

type fakeContractService struct {
	contract *models.Contract
	recorded []string
}

func (f *fakeContractService) Get(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	if f.contract == nil || f.contract.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.contract
	return &copied, nil
}

func (f *fakeContractService) GetByOrderID(context.Context, uuid.UUID) (*models.Contract, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeContractService) RecordPayment(_ context.Context, _ audit.Actor, contractID uuid.UUID, phase contracts.PaymentPhase, paymentID string) (*models.Contract, error) {
	f.recorded = append(f.recorded, string(phase)+":"+paymentID)
	copied := *f.contract
	return &copied, nil
}

type fakeCharger struct {
	params []gateway.PaymentCreateParams
	id     string
}

func (f *fakeCharger) CreatePayment(_ context.Context, params gateway.PaymentCreateParams) (*sq.Payment, error) {
	f.params = append(f.params, params)
	id := f.id
	return &sq.Payment{ID: &id}, nil
}

func newPaymentRouter(svc contracts.Service, charger paymentCharger) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "controllers-test"})
	r := chi.NewRouter()
	r.Use(middleware.ActorContext(logg))
	r.Post("/contracts/{contractId}/payments/{phase}", RecordContractPayment(svc, charger, logg))
	return r
}

func postPayment(handler http.Handler, contractID uuid.UUID, phase, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/contracts/"+contractID.String()+"/payments/"+phase, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", uuid.NewString())
	req.Header.Set("X-Actor-Role", "admin")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func testContract() *models.Contract {
	return &models.Contract{
		ID:            uuid.New(),
		OrderID:       uuid.New(),
		HelperID:      uuid.New(),
		Status:        enums.ContractStatusActive,
		DepositAmount: 30000,
		BalanceAmount: 70000,
		FinalAmount:   100000,
	}
}

func TestRecordContractPaymentWithExistingPayment(t *testing.T) {
	contract := testContract()
	svc := &fakeContractService{contract: contract}
	charger := &fakeCharger{id: "pay_unused"}
	handler := newPaymentRouter(svc, charger)

	resp := postPayment(handler, contract.ID, "deposit", `{"gatewayPaymentId":"pay_ext"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if len(svc.recorded) != 1 || svc.recorded[0] != "deposit:pay_ext" {
		t.Fatalf("recorded = %v, want deposit:pay_ext", svc.recorded)
	}
	if len(charger.params) != 0 {
		t.Fatal("an external payment id must not trigger a gateway charge")
	}
}

func TestRecordContractPaymentChargesSource(t *testing.T) {
	contract := testContract()
	svc := &fakeContractService{contract: contract}
	charger := &fakeCharger{id: "pay_new"}
	handler := newPaymentRouter(svc, charger)

	resp := postPayment(handler, contract.ID, "balance", `{"sourceId":"src_card"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if len(charger.params) != 1 {
		t.Fatalf("gateway charged %d times, want 1", len(charger.params))
	}
	params := charger.params[0]
	if params.Amount != contract.BalanceAmount {
		t.Errorf("charged %d, want balance amount %d", params.Amount, contract.BalanceAmount)
	}
	if params.OrderRef != contract.ID.String()+":balance" {
		t.Errorf("reference = %q, want contract-phase tag", params.OrderRef)
	}
	if len(svc.recorded) != 1 || svc.recorded[0] != "balance:pay_new" {
		t.Fatalf("recorded = %v, want balance:pay_new", svc.recorded)
	}
}

func TestRecordContractPaymentRejectsAmbiguousBody(t *testing.T) {
	contract := testContract()
	svc := &fakeContractService{contract: contract}
	handler := newPaymentRouter(svc, &fakeCharger{})

	both := postPayment(handler, contract.ID, "deposit", `{"gatewayPaymentId":"pay_ext","sourceId":"src_card"}`)
	if both.Code != http.StatusBadRequest {
		t.Fatalf("both fields: status = %d, want 400", both.Code)
	}
	neither := postPayment(handler, contract.ID, "deposit", `{}`)
	if neither.Code != http.StatusBadRequest {
		t.Fatalf("neither field: status = %d, want 400", neither.Code)
	}
	if len(svc.recorded) != 0 {
		t.Fatalf("recorded = %v, want none", svc.recorded)
	}
}
