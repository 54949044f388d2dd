package contracts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
)

// PaymentPhase names which contract installment a payment settles.
type PaymentPhase string

const (
	PaymentPhaseDeposit PaymentPhase = "deposit"
	PaymentPhaseBalance PaymentPhase = "balance"
)

// ParsePaymentPhase converts raw input into a PaymentPhase.
func ParsePaymentPhase(value string) (PaymentPhase, error) {
	switch PaymentPhase(value) {
	case PaymentPhaseDeposit:
		return PaymentPhaseDeposit, nil
	case PaymentPhaseBalance:
		return PaymentPhaseBalance, nil
	default:
		return "", fmt.Errorf("invalid payment phase %q", value)
	}
}

// Service records contract payments. Both the admin endpoint and the gateway
// webhook land here, so recording is idempotent per phase.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Contract, error)
	RecordPayment(ctx context.Context, actor audit.Actor, contractID uuid.UUID, phase PaymentPhase, gatewayPaymentID string) (*models.Contract, error)
}

// ServiceParams wires the contract service dependencies.
type ServiceParams struct {
	Tx    db.TxRunner
	Repo  Repository
	Audit audit.Recorder
	Now   func() time.Time
}

type service struct {
	tx    db.TxRunner
	repo  Repository
	audit audit.Recorder
	now   func() time.Time
}

// NewService wires a contract service from its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("contract repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{tx: params.Tx, repo: params.Repo, audit: params.Audit, now: now}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id is required")
	}
	contract, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return contract, nil
}

func (s *service) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Contract, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	contract, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return contract, nil
}

// RecordPayment marks the deposit or balance installment paid. Replaying the
// same phase is a no-op so webhook retries cannot double-record.
func (s *service) RecordPayment(ctx context.Context, actor audit.Actor, contractID uuid.UUID, phase PaymentPhase, gatewayPaymentID string) (*models.Contract, error) {
	if contractID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id is required")
	}
	if phase != PaymentPhaseDeposit && phase != PaymentPhaseBalance {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment phase").
			WithDetails(map[string]any{"phase": string(phase)})
	}

	var updated *models.Contract
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		contract, err := repo.GetByID(ctx, contractID)
		if err != nil {
			return notFoundOr(err)
		}
		if contract.Status == enums.ContractStatusVoided {
			return pkgerrors.New(pkgerrors.CodeConflict, "contract is voided")
		}

		alreadyPaid := (phase == PaymentPhaseDeposit && contract.DepositPaid) ||
			(phase == PaymentPhaseBalance && contract.BalancePaid)
		if alreadyPaid {
			updated = contract
			return nil
		}
		if phase == PaymentPhaseBalance && !contract.DepositPaid {
			return pkgerrors.New(pkgerrors.CodeConflict, "balance cannot be paid before the deposit")
		}

		before := *contract
		now := s.now().UTC()
		action := enums.AuditActionDepositPaid
		switch phase {
		case PaymentPhaseDeposit:
			contract.DepositPaid = true
			contract.DepositPaidAt = &now
		case PaymentPhaseBalance:
			contract.BalancePaid = true
			contract.BalancePaidAt = &now
			action = enums.AuditActionBalancePaid
		}
		if gatewayPaymentID != "" {
			ref := gatewayPaymentID
			contract.GatewayPayment = &ref
		}

		if err := repo.Update(ctx, contract); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     action,
			TargetType: "contract",
			TargetID:   contract.ID,
			Before:     before,
			After:      contract,
		}); err != nil {
			return err
		}
		updated = contract
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "contract not found")
	}
	return err
}
