package closing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
)

// Repository manages persistence for closing reports.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, report *models.ClosingReport) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.ClosingReport, error)
	Update(ctx context.Context, report *models.ClosingReport) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a closing report repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, report *models.ClosingReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.ClosingReport, error) {
	var report models.ClosingReport
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) Update(ctx context.Context, report *models.ClosingReport) error {
	return r.db.WithContext(ctx).Save(report).Error
}
