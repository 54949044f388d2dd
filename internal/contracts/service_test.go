package contracts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/pagination"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	contracts map[uuid.UUID]*models.Contract
	updates   int
}

func newFakeRepo(contracts ...*models.Contract) *fakeRepo {
	repo := &fakeRepo{contracts: map[uuid.UUID]*models.Contract{}}
	for _, contract := range contracts {
		repo.contracts[contract.ID] = contract
	}
	return repo
}

func (f *fakeRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepo) Create(_ context.Context, contract *models.Contract) error {
	f.contracts[contract.ID] = contract
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	contract, ok := f.contracts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *contract
	return &copied, nil
}

func (f *fakeRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*models.Contract, error) {
	for _, contract := range f.contracts {
		if contract.OrderID == orderID {
			copied := *contract
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetByGatewayPaymentID(_ context.Context, paymentID string) (*models.Contract, error) {
	for _, contract := range f.contracts {
		if contract.GatewayPayment != nil && *contract.GatewayPayment == paymentID {
			copied := *contract
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) Update(_ context.Context, contract *models.Contract) error {
	f.updates++
	copied := *contract
	f.contracts[contract.ID] = &copied
	return nil
}

type fakeRecorder struct {
	entries []audit.Entry
}

func (f *fakeRecorder) Record(_ context.Context, _ *gorm.DB, entry audit.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRecorder) ListByTarget(context.Context, string, uuid.UUID, pagination.Params) ([]models.AuditLogEntry, error) {
	return nil, nil
}

func testActor() audit.Actor {
	return audit.Actor{ID: uuid.New(), Role: "admin"}
}

func activeContract() *models.Contract {
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

func newTestService(t *testing.T, repo *fakeRepo, recorder *fakeRecorder) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Tx:    fakeTxRunner{},
		Repo:  repo,
		Audit: recorder,
		Now:   func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestRecordPaymentDeposit(t *testing.T) {
	contract := activeContract()
	repo := newFakeRepo(contract)
	recorder := &fakeRecorder{}
	svc := newTestService(t, repo, recorder)

	updated, err := svc.RecordPayment(context.Background(), testActor(), contract.ID, PaymentPhaseDeposit, "pay_123")
	if err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if !updated.DepositPaid || updated.DepositPaidAt == nil {
		t.Fatal("deposit must be marked paid with a timestamp")
	}
	if updated.GatewayPayment == nil || *updated.GatewayPayment != "pay_123" {
		t.Fatal("gateway payment reference must be stored")
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Action != enums.AuditActionDepositPaid {
		t.Fatalf("audit entries = %+v, want one deposit entry", recorder.entries)
	}
}

func TestRecordPaymentReplayIsNoOp(t *testing.T) {
	contract := activeContract()
	repo := newFakeRepo(contract)
	recorder := &fakeRecorder{}
	svc := newTestService(t, repo, recorder)

	if _, err := svc.RecordPayment(context.Background(), testActor(), contract.ID, PaymentPhaseDeposit, "pay_123"); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), testActor(), contract.ID, PaymentPhaseDeposit, "pay_123"); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if repo.updates != 1 {
		t.Fatalf("repo updated %d times, want 1", repo.updates)
	}
	if len(recorder.entries) != 1 {
		t.Fatalf("audited %d times, want 1", len(recorder.entries))
	}
}

func TestRecordPaymentBalanceRequiresDeposit(t *testing.T) {
	contract := activeContract()
	repo := newFakeRepo(contract)
	svc := newTestService(t, repo, &fakeRecorder{})

	_, err := svc.RecordPayment(context.Background(), testActor(), contract.ID, PaymentPhaseBalance, "pay_456")
	if err == nil {
		t.Fatal("balance before deposit must conflict")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("got %v, want conflict", err)
	}
}

func TestRecordPaymentVoidedContractConflicts(t *testing.T) {
	contract := activeContract()
	contract.Status = enums.ContractStatusVoided
	repo := newFakeRepo(contract)
	svc := newTestService(t, repo, &fakeRecorder{})

	_, err := svc.RecordPayment(context.Background(), testActor(), contract.ID, PaymentPhaseDeposit, "")
	if err == nil {
		t.Fatal("voided contract must reject payments")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("got %v, want conflict", err)
	}
}

func TestRecordPaymentUnknownContract(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeRecorder{})

	_, err := svc.RecordPayment(context.Background(), testActor(), uuid.New(), PaymentPhaseDeposit, "")
	if err == nil {
		t.Fatal("unknown contract must 404")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestParsePaymentPhase(t *testing.T) {
	if _, err := ParsePaymentPhase("deposit"); err != nil {
		t.Errorf("deposit should parse: %v", err)
	}
	if _, err := ParsePaymentPhase("balance"); err != nil {
		t.Errorf("balance should parse: %v", err)
	}
	if _, err := ParsePaymentPhase("final"); err == nil {
		t.Error("unknown phase should fail")
	}
}
