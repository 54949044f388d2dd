package contracts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
)

// Repository manages persistence for order-helper contracts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contract *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Contract, error)
	GetByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Contract, error)
	Update(ctx context.Context, contract *models.Contract) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a contract repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contract *models.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *repository) GetByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).
		Where("gateway_payment_id = ?", paymentID).
		First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *repository) Update(ctx context.Context, contract *models.Contract) error {
	return r.db.WithContext(ctx).Save(contract).Error
}
