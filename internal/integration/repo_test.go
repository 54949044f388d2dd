package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
)

func setupIntegrationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS integration_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  direction TEXT NOT NULL,
  external_ref TEXT,
  order_id TEXT,
  payload TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  retry_count INTEGER NOT NULL DEFAULT 0,
  next_retry_at DATETIME NOT NULL,
  last_error TEXT,
  response TEXT,
  claimed_by TEXT,
  claimed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, gdb.Exec(schema).Error)
	return gdb
}

func seedDueEvent(t *testing.T, repo Repository, now time.Time) *models.IntegrationEvent {
	t.Helper()

	event := &models.IntegrationEvent{
		ID:          uuid.New(),
		Provider:    ProviderGatewayPayment,
		Direction:   enums.IntegrationEventInbound,
		Payload:     json.RawMessage(`{}`),
		Status:      enums.IntegrationEventStatusPending,
		NextRetryAt: now.Add(-time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), event))
	return event
}

func TestClaimStampsWorker(t *testing.T) {
	repo := NewRepository(setupIntegrationTestDB(t))
	now := time.Now().UTC()
	event := seedDueEvent(t, repo, now)

	claimed, err := repo.Claim(context.Background(), event, "worker-a", now)
	require.NoError(t, err)
	require.True(t, claimed)

	loaded, err := repo.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ClaimedBy)
	assert.Equal(t, "worker-a", *loaded.ClaimedBy)
}

func TestClaimRefusedWhileAnotherWorkerHoldsIt(t *testing.T) {
	repo := NewRepository(setupIntegrationTestDB(t))
	now := time.Now().UTC()
	event := seedDueEvent(t, repo, now)

	first := *event
	claimed, err := repo.Claim(context.Background(), &first, "worker-a", now)
	require.NoError(t, err)
	require.True(t, claimed)

	// The status is still pending, so only the claim columns keep a second
	// worker off the row.
	second := *event
	claimed, err = repo.Claim(context.Background(), &second, "worker-b", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, claimed)

	loaded, err := repo.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ClaimedBy)
	assert.Equal(t, "worker-a", *loaded.ClaimedBy)
}

func TestClaimRecoversFromStaleClaim(t *testing.T) {
	repo := NewRepository(setupIntegrationTestDB(t))
	now := time.Now().UTC()
	event := seedDueEvent(t, repo, now)

	crashed := *event
	claimed, err := repo.Claim(context.Background(), &crashed, "worker-a", now.Add(-staleClaimAfter-time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	// The claim is past the staleness threshold; a later worker takes over.
	retaken := *event
	claimed, err = repo.Claim(context.Background(), &retaken, "worker-b", now)
	require.NoError(t, err)
	require.True(t, claimed)

	loaded, err := repo.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ClaimedBy)
	assert.Equal(t, "worker-b", *loaded.ClaimedBy)
}

func TestClaimRefusedBeforeRetryWindow(t *testing.T) {
	repo := NewRepository(setupIntegrationTestDB(t))
	now := time.Now().UTC()
	event := seedDueEvent(t, repo, now)
	require.NoError(t, repo.MarkRetrying(context.Background(), event, "down", now.Add(time.Hour)))

	claimed, err := repo.Claim(context.Background(), event, "worker-a", now)
	require.NoError(t, err)
	assert.False(t, claimed)
}
