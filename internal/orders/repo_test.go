package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  helper_id TEXT,
  status TEXT NOT NULL DEFAULT 'approval_pending',
  unit_price INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  urgent INTEGER NOT NULL DEFAULT 0,
  policy_snapshot_id TEXT,
  version INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  registered_at DATETIME,
  matched_at DATETIME,
  scheduled_at DATETIME,
  work_started_at DATETIME,
  closed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, gdb.Exec(schema).Error)
	return gdb
}

func seedOrder(t *testing.T, repo Repository, requesterID uuid.UUID, createdAt time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:          uuid.New(),
		RequesterID: requesterID,
		Status:      enums.OrderStatusApprovalPending,
		UnitPrice:   1000,
		Quantity:    10,
		CreatedAt:   createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestOrderRepositoryRoundTrip(t *testing.T) {
	repo := NewRepository(setupOrdersTestDB(t))
	requesterID := uuid.New()
	created := seedOrder(t, repo, requesterID, time.Now().UTC())

	loaded, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, requesterID, loaded.RequesterID)
	assert.Equal(t, enums.OrderStatusApprovalPending, loaded.Status)
	assert.Equal(t, int64(0), loaded.Version)
}

func TestListByRequesterCursorPagination(t *testing.T) {
	repo := NewRepository(setupOrdersTestDB(t))
	requesterID := uuid.New()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	oldest := seedOrder(t, repo, requesterID, base)
	middle := seedOrder(t, repo, requesterID, base.Add(time.Minute))
	newest := seedOrder(t, repo, requesterID, base.Add(2*time.Minute))
	seedOrder(t, repo, uuid.New(), base.Add(3*time.Minute))

	// The repo fetches one row past the limit so callers can detect the
	// next page.
	page, err := repo.ListByRequester(context.Background(), requesterID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, newest.ID, page[0].ID)
	assert.Equal(t, middle.ID, page[1].ID)

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID})
	rest, err := repo.ListByRequester(context.Background(), requesterID, pagination.Params{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, oldest.ID, rest[0].ID)
}

func TestUpdateStatusVersioned(t *testing.T) {
	repo := NewRepository(setupOrdersTestDB(t))
	order := seedOrder(t, repo, uuid.New(), time.Now().UTC())
	at := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpdateStatusVersioned(context.Background(), order, enums.OrderStatusRegistering, at))
	assert.Equal(t, enums.OrderStatusRegistering, order.Status)
	assert.Equal(t, int64(1), order.Version)
	require.NotNil(t, order.RegisteredAt)

	loaded, err := repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRegistering, loaded.Status)
	assert.Equal(t, int64(1), loaded.Version)
	require.NotNil(t, loaded.RegisteredAt)
}

func TestUpdateStatusVersionedConflictsOnStaleVersion(t *testing.T) {
	repo := NewRepository(setupOrdersTestDB(t))
	order := seedOrder(t, repo, uuid.New(), time.Now().UTC())

	stale := *order
	require.NoError(t, repo.UpdateStatusVersioned(context.Background(), order, enums.OrderStatusRegistering, time.Now().UTC()))

	err := repo.UpdateStatusVersioned(context.Background(), &stale, enums.OrderStatusCancelled, time.Now().UTC())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStorageConflict, typed.Code())
}
