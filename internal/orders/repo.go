package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/pagination"
)

// Repository manages persistence for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByIDFull(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, params pagination.Params) ([]models.Order, error)
	UpdateStatusVersioned(ctx context.Context, order *models.Order, to enums.OrderStatus, at time.Time) error
	Updates(ctx context.Context, id uuid.UUID, values map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByIDFull loads the order with its contract, closing report and
// settlement associations.
func (r *repository) GetByIDFull(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Contract").
		Preload("ClosingReport").
		Preload("Settlement").
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByRequester(ctx context.Context, requesterID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// statusTimestampColumns maps each status to the column stamped when an order
// enters it. Matching has no column of its own.
var statusTimestampColumns = map[enums.OrderStatus]string{
	enums.OrderStatusRegistering: "registered_at",
	enums.OrderStatusScheduled:   "scheduled_at",
	enums.OrderStatusWorking:     "work_started_at",
	enums.OrderStatusClosed:      "closed_at",
	enums.OrderStatusCancelled:   "cancelled_at",
}

// UpdateStatusVersioned moves the order to the target status with an
// optimistic concurrency check on the version column. When another writer got
// there first the conditional update matches zero rows and the caller gets a
// storage conflict to re-read and retry against the new state.
func (r *repository) UpdateStatusVersioned(ctx context.Context, order *models.Order, to enums.OrderStatus, at time.Time) error {
	values := map[string]any{
		"status":  to,
		"version": order.Version + 1,
	}
	if column, ok := statusTimestampColumns[to]; ok {
		values[column] = at
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStorageConflict, "order was modified concurrently").
			WithDetails(map[string]any{"orderId": order.ID, "version": order.Version})
	}

	order.Status = to
	order.Version++
	stamp := at
	switch to {
	case enums.OrderStatusRegistering:
		order.RegisteredAt = &stamp
	case enums.OrderStatusScheduled:
		order.ScheduledAt = &stamp
	case enums.OrderStatusWorking:
		order.WorkStartedAt = &stamp
	case enums.OrderStatusClosed:
		order.ClosedAt = &stamp
	case enums.OrderStatusCancelled:
		order.CancelledAt = &stamp
	}
	return nil
}

func (r *repository) Updates(ctx context.Context, id uuid.UUID, values map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(values).Error
}
