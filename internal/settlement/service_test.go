package settlement

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

type fakeRecordRepo struct {
	record *models.SettlementRecord
}

func (f *fakeRecordRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRecordRepo) Create(_ context.Context, record *models.SettlementRecord) error {
	copied := *record
	f.record = &copied
	return nil
}

func (f *fakeRecordRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*models.SettlementRecord, error) {
	if f.record == nil || f.record.OrderID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.record
	return &copied, nil
}

func (f *fakeRecordRepo) Update(_ context.Context, record *models.SettlementRecord) error {
	copied := *record
	f.record = &copied
	return nil
}

type stubReaders struct{}

func (stubReaders) GetByID(context.Context, uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

type stubClosings struct{}

func (stubClosings) GetByOrderID(context.Context, uuid.UUID) (*models.ClosingReport, error) {
	return nil, gorm.ErrRecordNotFound
}

type stubSnapshots struct{}

func (stubSnapshots) GetByOrderID(context.Context, uuid.UUID) (*models.PolicySnapshot, error) {
	return nil, gorm.ErrRecordNotFound
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

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) NotifySettlementInvariant(_ context.Context, _ uuid.UUID, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func disputedRecord(orderID uuid.UUID) *models.SettlementRecord {
	return &models.SettlementRecord{
		ID:           uuid.New(),
		OrderID:      orderID,
		Status:       enums.SettlementStatusDisputed,
		SupplyAmount: 100000,
		VATAmount:    10000,
		FinalTotal:   110000,
		PlatformFee:  11000,
		DriverPayout: 99000,
	}
}

func newServiceFixture(t *testing.T, record *models.SettlementRecord) (Service, *fakeRecordRepo, *fakeRecorder, *fakeNotifier) {
	t.Helper()

	repo := &fakeRecordRepo{record: record}
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	svc, err := NewService(ServiceParams{
		Tx:        fakeTxRunner{},
		Repo:      repo,
		Orders:    stubReaders{},
		Closings:  stubClosings{},
		Snapshots: stubSnapshots{},
		Audit:     recorder,
		Notifier:  notifier,
		Now:       func() time.Time { return time.Date(2026, 7, 1, 11, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc, repo, recorder, notifier
}

func serviceActor() audit.Actor {
	return audit.Actor{ID: uuid.New(), Role: "admin"}
}

func TestResolveDisputeAppliesDeduction(t *testing.T) {
	orderID := uuid.New()
	svc, repo, recorder, notifier := newServiceFixture(t, disputedRecord(orderID))

	record, err := svc.ResolveDispute(context.Background(), serviceActor(), orderID, 9000, "crate damage confirmed")
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if record.DamageDeduction != 9000 || record.DriverPayout != 90000 {
		t.Errorf("deduction/payout = %d/%d, want 9000/90000", record.DamageDeduction, record.DriverPayout)
	}
	if record.Status != enums.SettlementStatusApproved {
		t.Errorf("status = %s, want approved", record.Status)
	}
	if repo.record.DriverPayout != 90000 {
		t.Errorf("stored payout = %d, want 90000", repo.record.DriverPayout)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Action != enums.AuditActionDisputeResolved {
		t.Fatalf("audit entries = %+v, want one resolution entry", recorder.entries)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("operator notified for a clean resolution: %v", notifier.messages)
	}
}

func TestResolveDisputeExcessiveDeductionEscalates(t *testing.T) {
	orderID := uuid.New()
	svc, repo, _, notifier := newServiceFixture(t, disputedRecord(orderID))

	_, err := svc.ResolveDispute(context.Background(), serviceActor(), orderID, 99001, "total loss claimed")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeSettlementInvariant {
		t.Fatalf("got %v, want settlement invariant violation", err)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("operator notified %d times, want 1", len(notifier.messages))
	}
	if repo.record.DamageDeduction != 0 || repo.record.Status != enums.SettlementStatusDisputed {
		t.Fatal("a rejected resolution must not alter the stored record")
	}
}

func TestResolveDisputeRequiresDisputedStatus(t *testing.T) {
	orderID := uuid.New()
	record := disputedRecord(orderID)
	record.Status = enums.SettlementStatusPaid
	svc, _, _, notifier := newServiceFixture(t, record)

	_, err := svc.ResolveDispute(context.Background(), serviceActor(), orderID, 1000, "late claim")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("got %v, want conflict", err)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("conflict must not page an operator: %v", notifier.messages)
	}
}

func TestApproveThenPay(t *testing.T) {
	orderID := uuid.New()
	record := disputedRecord(orderID)
	record.Status = enums.SettlementStatusCalculated
	svc, repo, _, _ := newServiceFixture(t, record)
	actor := serviceActor()

	approved, err := svc.Approve(context.Background(), actor, orderID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != enums.SettlementStatusApproved || approved.ApprovedAt == nil {
		t.Fatal("approval must stamp status and timestamp")
	}

	paid, err := svc.MarkPaid(context.Background(), actor, orderID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != enums.SettlementStatusPaid || paid.PaidAt == nil {
		t.Fatal("payment must stamp status and timestamp")
	}
	if repo.record.Status != enums.SettlementStatusPaid {
		t.Errorf("stored status = %s, want paid", repo.record.Status)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	orderID := uuid.New()
	svc, _, _, _ := newServiceFixture(t, disputedRecord(orderID))

	_, err := svc.Cancel(context.Background(), serviceActor(), orderID, "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("got %v, want validation error", err)
	}
}
