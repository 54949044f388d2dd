package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/config"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	"github.com/cargolink/cargolink-backend/pkg/logger"
	"github.com/cargolink/cargolink-backend/pkg/pagination"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type fakeRepo struct {
	due []models.IntegrationEvent

	claimed     []string
	succeeded   []uuid.UUID
	retried     []time.Time
	failed      []uuid.UUID
	failClaim   bool
	lastErrors  []string
	lastRetries []int
}

func (f *fakeRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepo) Create(context.Context, *models.IntegrationEvent) error { return nil }

func (f *fakeRepo) GetByID(context.Context, uuid.UUID) (*models.IntegrationEvent, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetByProviderRef(context.Context, string, string) (*models.IntegrationEvent, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListDue(context.Context, time.Time, int) ([]models.IntegrationEvent, error) {
	return f.due, nil
}

func (f *fakeRepo) Claim(_ context.Context, event *models.IntegrationEvent, workerID string, now time.Time) (bool, error) {
	if f.failClaim {
		return false, nil
	}
	f.claimed = append(f.claimed, workerID)
	event.ClaimedBy = &workerID
	event.ClaimedAt = &now
	return true, nil
}

func (f *fakeRepo) MarkSucceeded(_ context.Context, event *models.IntegrationEvent, response json.RawMessage) error {
	f.succeeded = append(f.succeeded, event.ID)
	event.Status = enums.IntegrationEventStatusSucceeded
	event.Response = response
	return nil
}

func (f *fakeRepo) MarkRetrying(_ context.Context, event *models.IntegrationEvent, lastError string, nextRetryAt time.Time) error {
	event.RetryCount++
	event.Status = enums.IntegrationEventStatusRetrying
	event.NextRetryAt = nextRetryAt
	f.retried = append(f.retried, nextRetryAt)
	f.lastErrors = append(f.lastErrors, lastError)
	f.lastRetries = append(f.lastRetries, event.RetryCount)
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, event *models.IntegrationEvent, lastError string) error {
	f.failed = append(f.failed, event.ID)
	event.Status = enums.IntegrationEventStatusFailed
	return nil
}

type fakeNotifications struct {
	exhausted []uuid.UUID
}

func (f *fakeNotifications) NotifyIntegrationExhausted(_ context.Context, _ *gorm.DB, event *models.IntegrationEvent) error {
	f.exhausted = append(f.exhausted, event.ID)
	return nil
}

func (f *fakeNotifications) NotifySettlementInvariant(context.Context, uuid.UUID, string) error {
	return nil
}

func (f *fakeNotifications) List(context.Context, bool, pagination.Params) ([]models.OperatorNotification, error) {
	return nil, nil
}

func (f *fakeNotifications) MarkRead(context.Context, uuid.UUID) error { return nil }

type scriptedHandler struct {
	provider string
	errs     []error
	calls    int
}

func (h *scriptedHandler) Provider() string { return h.provider }

func (h *scriptedHandler) Handle(context.Context, *models.IntegrationEvent) (json.RawMessage, error) {
	var err error
	if h.calls < len(h.errs) {
		err = h.errs[h.calls]
	}
	h.calls++
	if err != nil {
		return nil, err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func testEvent(provider string) models.IntegrationEvent {
	return models.IntegrationEvent{
		ID:       uuid.New(),
		Provider: provider,
		Status:   enums.IntegrationEventStatusPending,
		Payload:  json.RawMessage(`{}`),
	}
}

func newTestWorker(t *testing.T, repo *fakeRepo, handler Handler, notifs *fakeNotifications, lock *fakeLock, now time.Time) *Worker {
	t.Helper()
	registry, err := NewRegistry(handler)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	worker, err := NewWorker(WorkerParams{
		Tx:            fakeTxRunner{},
		Repo:          repo,
		Registry:      registry,
		Lock:          lock,
		Notifications: notifs,
		Logger:        logger.New(logger.Options{ServiceName: "reconcile-test"}),
		Config:        config.ReconcileConfig{MaxRetries: 3},
		InstanceID:    "worker-test",
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	return worker
}

func TestRunCycleReconcilesEvent(t *testing.T) {
	repo := &fakeRepo{due: []models.IntegrationEvent{testEvent("gateway.payment")}}
	handler := &scriptedHandler{provider: "gateway.payment"}
	lock := &fakeLock{}
	worker := newTestWorker(t, repo, handler, &fakeNotifications{}, lock, time.Now())

	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if len(repo.succeeded) != 1 {
		t.Fatalf("succeeded %d events, want 1", len(repo.succeeded))
	}
	if len(repo.claimed) != 1 || repo.claimed[0] != "worker-test" {
		t.Fatalf("claims = %v, want one by worker-test", repo.claimed)
	}
	if lock.releases != 1 {
		t.Fatalf("lock released %d times, want 1", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	repo := &fakeRepo{due: []models.IntegrationEvent{testEvent("gateway.payment")}}
	handler := &scriptedHandler{provider: "gateway.payment"}
	lock := &fakeLock{held: true}
	worker := newTestWorker(t, repo, handler, &fakeNotifications{}, lock, time.Now())

	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if handler.calls != 0 {
		t.Fatalf("handler ran %d times while lock was held", handler.calls)
	}
}

func TestRetryBackoffDoubles(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	event := testEvent("gateway.payment")
	repo := &fakeRepo{due: []models.IntegrationEvent{event}}
	handler := &scriptedHandler{provider: "gateway.payment", errs: []error{errors.New("down"), errors.New("down")}}
	worker := newTestWorker(t, repo, handler, &fakeNotifications{}, &fakeLock{}, now)

	// First failure schedules the retry 2 minutes out.
	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if len(repo.retried) != 1 {
		t.Fatalf("retried %d times, want 1", len(repo.retried))
	}
	if got, want := repo.retried[0], now.Add(2*time.Minute); !got.Equal(want) {
		t.Errorf("first retry at %v, want %v", got, want)
	}

	// Second failure doubles the wait to 4 minutes.
	repo.due = []models.IntegrationEvent{*eventAfterRetry(event, 1, repo.retried[0])}
	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if len(repo.retried) != 2 {
		t.Fatalf("retried %d times, want 2", len(repo.retried))
	}
	if got, want := repo.retried[1], now.Add(4*time.Minute); !got.Equal(want) {
		t.Errorf("second retry at %v, want %v", got, want)
	}
}

func eventAfterRetry(event models.IntegrationEvent, retryCount int, nextRetryAt time.Time) *models.IntegrationEvent {
	event.RetryCount = retryCount
	event.Status = enums.IntegrationEventStatusRetrying
	event.NextRetryAt = nextRetryAt
	return &event
}

func TestExhaustionNotifiesOperatorOnce(t *testing.T) {
	event := testEvent("gateway.payment")
	event.RetryCount = 2
	repo := &fakeRepo{due: []models.IntegrationEvent{event}}
	handler := &scriptedHandler{provider: "gateway.payment", errs: []error{errors.New("still down")}}
	notifs := &fakeNotifications{}
	worker := newTestWorker(t, repo, handler, notifs, &fakeLock{}, time.Now())

	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if len(repo.failed) != 1 {
		t.Fatalf("failed %d events, want 1 terminal failure", len(repo.failed))
	}
	if len(repo.retried) != 0 {
		t.Fatalf("retried %d times after exhaustion", len(repo.retried))
	}
	if len(notifs.exhausted) != 1 || notifs.exhausted[0] != event.ID {
		t.Fatalf("operator notified %d times (%v), want exactly once for %s", len(notifs.exhausted), notifs.exhausted, event.ID)
	}
}

func TestUnknownProviderExhaustsImmediately(t *testing.T) {
	event := testEvent("unknown.provider")
	repo := &fakeRepo{due: []models.IntegrationEvent{event}}
	handler := &scriptedHandler{provider: "gateway.payment"}
	notifs := &fakeNotifications{}
	worker := newTestWorker(t, repo, handler, notifs, &fakeLock{}, time.Now())

	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("failed %d events, want 1", len(repo.failed))
	}
	if len(notifs.exhausted) != 1 {
		t.Fatalf("operator notified %d times, want 1", len(notifs.exhausted))
	}
	if handler.calls != 0 {
		t.Fatalf("handler ran for an unknown provider")
	}
}

func TestUnclaimedEventsAreSkipped(t *testing.T) {
	repo := &fakeRepo{due: []models.IntegrationEvent{testEvent("gateway.payment")}, failClaim: true}
	handler := &scriptedHandler{provider: "gateway.payment"}
	worker := newTestWorker(t, repo, handler, &fakeNotifications{}, &fakeLock{}, time.Now())

	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if handler.calls != 0 {
		t.Fatalf("handler ran %d times for an unclaimed event", handler.calls)
	}
}
