package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	"github.com/cargolink/cargolink-backend/internal/lifecycle"
	"github.com/cargolink/cargolink-backend/internal/policy"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/pagination"
)

// Service owns the order lifecycle: registration, transitions, matching.
type Service interface {
	Register(ctx context.Context, actor audit.Actor, input RegisterInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, requesterID uuid.UUID, params pagination.Params) ([]models.Order, error)
	Transition(ctx context.Context, actor audit.Actor, orderID uuid.UUID, to enums.OrderStatus, reason string) (*models.Order, error)
	Match(ctx context.Context, actor audit.Actor, orderID uuid.UUID, input MatchInput) (*models.Order, error)
}

// RegisterInput captures a new order registration.
type RegisterInput struct {
	RequesterID uuid.UUID
	UnitPrice   int64
	Quantity    int
	Urgent      bool
	Notes       string
}

// MatchInput binds a helper to an order and fixes the contract amounts.
type MatchInput struct {
	HelperID      uuid.UUID
	DepositAmount int64
	FinalAmount   int64
}

// ServiceParams wires the order service dependencies.
type ServiceParams struct {
	Tx        db.TxRunner
	Repo      Repository
	Policies  policy.Service
	Contracts contracts.Repository
	Audit     audit.Recorder
	Now       func() time.Time
}

type service struct {
	tx        db.TxRunner
	repo      Repository
	policies  policy.Service
	contracts contracts.Repository
	audit     audit.Recorder
	now       func() time.Time
}

// NewService wires an order service from its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Policies == nil {
		return nil, fmt.Errorf("policy service required")
	}
	if params.Contracts == nil {
		return nil, fmt.Errorf("contract repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		policies:  params.Policies,
		contracts: params.Contracts,
		audit:     params.Audit,
		now:       now,
	}, nil
}

// Register creates the order in approval_pending and captures the policy
// snapshot in the same transaction, so no order can exist without the exact
// rules it will settle under.
func (s *service) Register(ctx context.Context, actor audit.Actor, input RegisterInput) (*models.Order, error) {
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester id is required")
	}
	if input.UnitPrice <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order := &models.Order{
			RequesterID: input.RequesterID,
			Status:      enums.OrderStatusApprovalPending,
			UnitPrice:   input.UnitPrice,
			Quantity:    input.Quantity,
			Urgent:      input.Urgent,
		}
		if input.Notes != "" {
			notes := input.Notes
			order.Notes = &notes
		}
		if err := repo.Create(ctx, order); err != nil {
			return err
		}

		snapshot, err := s.policies.Capture(ctx, tx, order.ID, input.UnitPrice)
		if err != nil {
			return err
		}
		if err := repo.Updates(ctx, order.ID, map[string]any{"policy_snapshot_id": snapshot.ID}); err != nil {
			return err
		}
		order.PolicySnapshotID = &snapshot.ID

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionOrderCreated,
			TargetType: "order",
			TargetID:   order.ID,
			After:      order,
		}); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.GetByIDFull(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return order, nil
}

func (s *service) List(ctx context.Context, requesterID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	if requesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester id is required")
	}
	return s.repo.ListByRequester(ctx, requesterID, params)
}

// Transition moves the order along the lifecycle graph. The version check
// serializes concurrent writers: exactly one of two simultaneous transitions
// commits, the other sees a storage conflict and exactly one audit entry
// exists afterwards.
func (s *service) Transition(ctx context.Context, actor audit.Actor, orderID uuid.UUID, to enums.OrderStatus, reason string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if to == enums.OrderStatusCancelled && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByID(ctx, orderID)
		if err != nil {
			return notFoundOr(err)
		}
		if err := lifecycle.Validate(order.Status, to); err != nil {
			return err
		}

		from := order.Status
		if err := repo.UpdateStatusVersioned(ctx, order, to, s.now().UTC()); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionOrderTransitioned,
			TargetType: "order",
			TargetID:   order.ID,
			Before:     map[string]any{"status": from.String()},
			After:      map[string]any{"status": to.String()},
			Reason:     reason,
		}); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Match binds the helper, creates the contract with its deposit/balance
// split, and moves the order to scheduled, all in one transaction.
func (s *service) Match(ctx context.Context, actor audit.Actor, orderID uuid.UUID, input MatchInput) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.HelperID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "helper id is required")
	}
	if input.FinalAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "final amount must be positive")
	}
	if input.DepositAmount < 0 || input.DepositAmount > input.FinalAmount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit must be between zero and the final amount")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByID(ctx, orderID)
		if err != nil {
			return notFoundOr(err)
		}
		if err := lifecycle.Validate(order.Status, enums.OrderStatusScheduled); err != nil {
			return err
		}

		now := s.now().UTC()
		contract := &models.Contract{
			OrderID:       order.ID,
			HelperID:      input.HelperID,
			Status:        enums.ContractStatusActive,
			DepositAmount: input.DepositAmount,
			BalanceAmount: input.FinalAmount - input.DepositAmount,
			FinalAmount:   input.FinalAmount,
		}
		if err := s.contracts.WithTx(tx).Create(ctx, contract); err != nil {
			return err
		}

		if err := repo.UpdateStatusVersioned(ctx, order, enums.OrderStatusScheduled, now); err != nil {
			return err
		}
		if err := repo.Updates(ctx, order.ID, map[string]any{
			"helper_id":  input.HelperID,
			"matched_at": now,
		}); err != nil {
			return err
		}
		order.HelperID = &input.HelperID
		order.MatchedAt = &now

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionOrderMatched,
			TargetType: "order",
			TargetID:   order.ID,
			After: map[string]any{
				"helperId":   input.HelperID,
				"contractId": contract.ID,
				"deposit":    contract.DepositAmount,
				"balance":    contract.BalanceAmount,
				"final":      contract.FinalAmount,
			},
		}); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	return err
}
