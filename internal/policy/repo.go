package policy

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
)

// Repository manages persistence for policy snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, snapshot *models.PolicySnapshot) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PolicySnapshot, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a policy repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, snapshot *models.PolicySnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PolicySnapshot, error) {
	var snapshot models.PolicySnapshot
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}
