package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
)

// Service captures immutable policy snapshots for new orders.
type Service interface {
	Capture(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, unitPrice int64) (*models.PolicySnapshot, error)
	SnapshotForOrder(ctx context.Context, orderID uuid.UUID) (*models.PolicySnapshot, error)
}

type service struct {
	repo     Repository
	rules    Rules
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires a policy service with the provided repository and the
// policy rules currently in force.
func NewService(repo Repository, rules Rules) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("policy repository required")
	}
	return &service{
		repo:     repo,
		rules:    rules,
		validate: validator.New(),
		now:      time.Now,
	}, nil
}

type captureInput struct {
	OrderID        uuid.UUID `validate:"required"`
	UnitPrice      int64     `validate:"required,gt=0"`
	PolicyVersion  int       `validate:"required,gt=0"`
	CommissionBase string    `validate:"required,oneof=total supply"`
}

// Capture persists a snapshot of the current rules for the order, inside the
// caller's transaction. Snapshots are write-once; a duplicate order id fails
// on the unique index.
func (s *service) Capture(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, unitPrice int64) (*models.PolicySnapshot, error) {
	input := captureInput{
		OrderID:        orderID,
		UnitPrice:      unitPrice,
		PolicyVersion:  s.rules.Version,
		CommissionBase: s.rules.CommissionBase.String(),
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("validating policy snapshot: %w", err)
	}

	snapshot := &models.PolicySnapshot{
		OrderID:        orderID,
		PolicyVersion:  s.rules.Version,
		UnitPrice:      unitPrice,
		CommissionBase: s.rules.CommissionBase,
		CommissionRate: s.rules.CommissionRate,
		UrgentFeeRate:  s.rules.UrgentFeeRate,
		VATRate:        s.rules.VATRate,
		CapturedAt:     s.now().UTC(),
	}
	if s.rules.UrgentFeeMax > 0 {
		v := s.rules.UrgentFeeMax
		snapshot.UrgentFeeMax = &v
	}
	if s.rules.MinGuaranteeTotal > 0 {
		v := s.rules.MinGuaranteeTotal
		snapshot.MinGuaranteeTotal = &v
	}
	if s.rules.MinPlatformFee > 0 {
		v := s.rules.MinPlatformFee
		snapshot.MinPlatformFee = &v
	}
	if s.rules.MaxPlatformFee > 0 {
		v := s.rules.MaxPlatformFee
		snapshot.MaxPlatformFee = &v
	}

	if err := s.repo.WithTx(tx).Create(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *service) SnapshotForOrder(ctx context.Context, orderID uuid.UUID) (*models.PolicySnapshot, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.GetByOrderID(ctx, orderID)
}
