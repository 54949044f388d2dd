package settlement

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

// Service owns the settlement record workflow after the closing approval has
// produced the authoritative figures.
type Service interface {
	Figures(ctx context.Context, orderID uuid.UUID) (CalcResult, error)
	Approve(ctx context.Context, actor audit.Actor, orderID uuid.UUID) (*models.SettlementRecord, error)
	MarkPaid(ctx context.Context, actor audit.Actor, orderID uuid.UUID) (*models.SettlementRecord, error)
	Cancel(ctx context.Context, actor audit.Actor, orderID uuid.UUID, reason string) (*models.SettlementRecord, error)
	Dispute(ctx context.Context, actor audit.Actor, orderID uuid.UUID, reason string) (*models.SettlementRecord, error)
	ResolveDispute(ctx context.Context, actor audit.Actor, orderID uuid.UUID, damageDeduction int64, reason string) (*models.SettlementRecord, error)
}

type orderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type closingReader interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.ClosingReport, error)
}

type snapshotReader interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PolicySnapshot, error)
}

type invariantNotifier interface {
	NotifySettlementInvariant(ctx context.Context, orderID uuid.UUID, message string) error
}

// ServiceParams wires the settlement service dependencies.
type ServiceParams struct {
	Tx        db.TxRunner
	Repo      Repository
	Orders    orderReader
	Closings  closingReader
	Snapshots snapshotReader
	Audit     audit.Recorder
	Notifier  invariantNotifier
	Now       func() time.Time
}

type service struct {
	tx        db.TxRunner
	repo      Repository
	orders    orderReader
	closings  closingReader
	snapshots snapshotReader
	audit     audit.Recorder
	notifier  invariantNotifier
	now       func() time.Time
}

// NewService wires a settlement service from its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Closings == nil {
		return nil, fmt.Errorf("closing reader required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot reader required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("invariant notifier required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		orders:    params.Orders,
		closings:  params.Closings,
		snapshots: params.Snapshots,
		audit:     params.Audit,
		notifier:  params.Notifier,
		now:       now,
	}, nil
}

// Figures returns the settlement figures for an order. A stored record is
// authoritative and always wins; recomputation from the approved closing
// evidence only stands in when no record exists yet, and by construction
// reproduces the same numbers.
func (s *service) Figures(ctx context.Context, orderID uuid.UUID) (CalcResult, error) {
	if orderID == uuid.Nil {
		return CalcResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	record, err := s.repo.GetByOrderID(ctx, orderID)
	if err == nil {
		return CalcResult{
			SupplyAmount:    record.SupplyAmount,
			VATAmount:       record.VATAmount,
			FinalTotal:      record.FinalTotal,
			PlatformFee:     record.PlatformFee,
			DamageDeduction: record.DamageDeduction,
			DriverPayout:    record.DriverPayout,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return CalcResult{}, err
	}

	return s.recompute(ctx, orderID)
}

func (s *service) recompute(ctx context.Context, orderID uuid.UUID) (CalcResult, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return CalcResult{}, notFoundOr(err, "order not found")
	}
	report, err := s.closings.GetByOrderID(ctx, orderID)
	if err != nil {
		return CalcResult{}, notFoundOr(err, "closing report not found")
	}
	if !report.Approved {
		return CalcResult{}, pkgerrors.New(pkgerrors.CodeConflict, "closing report not approved yet")
	}
	snapshot, err := s.snapshots.GetByOrderID(ctx, orderID)
	if err != nil {
		return CalcResult{}, notFoundOr(err, "policy snapshot not found")
	}

	return Calculate(CalcInput{
		DeliveredCount: report.DeliveredCount,
		ReturnedCount:  report.ReturnedCount,
		EtcCount:       report.EtcCount,
		UnitPrice:      snapshot.UnitPrice,
		ExtraCosts:     report.ExtraCosts,
		Urgent:         order.Urgent,
		Snapshot:       snapshot,
	})
}

func (s *service) Approve(ctx context.Context, actor audit.Actor, orderID uuid.UUID) (*models.SettlementRecord, error) {
	return s.updateStatus(ctx, actor, orderID, updateStatusInput{
		from:   []enums.SettlementStatus{enums.SettlementStatusCalculated},
		to:     enums.SettlementStatusApproved,
		action: enums.AuditActionSettlementApproved,
		apply: func(record *models.SettlementRecord, now time.Time) {
			record.ApprovedAt = &now
		},
	})
}

func (s *service) MarkPaid(ctx context.Context, actor audit.Actor, orderID uuid.UUID) (*models.SettlementRecord, error) {
	return s.updateStatus(ctx, actor, orderID, updateStatusInput{
		from:   []enums.SettlementStatus{enums.SettlementStatusApproved},
		to:     enums.SettlementStatusPaid,
		action: enums.AuditActionSettlementPaid,
		apply: func(record *models.SettlementRecord, now time.Time) {
			record.PaidAt = &now
		},
	})
}

func (s *service) Cancel(ctx context.Context, actor audit.Actor, orderID uuid.UUID, reason string) (*models.SettlementRecord, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}
	return s.updateStatus(ctx, actor, orderID, updateStatusInput{
		from:   []enums.SettlementStatus{enums.SettlementStatusCalculated, enums.SettlementStatusApproved},
		to:     enums.SettlementStatusCancelled,
		action: enums.AuditActionSettlementCancelled,
		reason: reason,
	})
}

func (s *service) Dispute(ctx context.Context, actor audit.Actor, orderID uuid.UUID, reason string) (*models.SettlementRecord, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
	}
	return s.updateStatus(ctx, actor, orderID, updateStatusInput{
		from:   []enums.SettlementStatus{enums.SettlementStatusCalculated, enums.SettlementStatusApproved},
		to:     enums.SettlementStatusDisputed,
		action: enums.AuditActionSettlementDisputed,
		reason: reason,
	})
}

// ResolveDispute applies a damage deduction and recomputes the payout from
// the stored figures. The supply/VAT/fee amounts never change here; only the
// deduction and the payout move, and a deduction that would push the payout
// negative is rejected.
func (s *service) ResolveDispute(ctx context.Context, actor audit.Actor, orderID uuid.UUID, damageDeduction int64, reason string) (*models.SettlementRecord, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution reason is required")
	}
	if damageDeduction < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "damage deduction must not be negative")
	}

	var updated *models.SettlementRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.GetByOrderID(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "settlement record not found")
		}
		if record.Status != enums.SettlementStatusDisputed {
			return statusConflict(record.Status, enums.SettlementStatusDisputed)
		}

		payout := record.FinalTotal - record.PlatformFee - damageDeduction
		if payout < 0 {
			return pkgerrors.New(pkgerrors.CodeSettlementInvariant, "damage deduction exceeds payout").
				WithDetails(map[string]any{
					"finalTotal":      record.FinalTotal,
					"platformFee":     record.PlatformFee,
					"damageDeduction": damageDeduction,
				})
		}

		before := *record
		record.DamageDeduction = damageDeduction
		record.DriverPayout = payout
		record.Status = enums.SettlementStatusApproved
		now := s.now().UTC()
		record.ApprovedAt = &now

		if err := repo.Update(ctx, record); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionDisputeResolved,
			TargetType: "settlement_record",
			TargetID:   record.ID,
			Before:     before,
			After:      record,
			Reason:     reason,
		}); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		s.escalateInvariant(ctx, orderID, err)
		return nil, err
	}
	return updated, nil
}

// escalateInvariant surfaces a settlement invariant violation to an operator.
// It runs after the transaction rolled back so the notification survives, and
// the original error is what the caller sees either way.
func (s *service) escalateInvariant(ctx context.Context, orderID uuid.UUID, err error) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeSettlementInvariant {
		return
	}
	_ = s.notifier.NotifySettlementInvariant(ctx, orderID, typed.Error())
}

type updateStatusInput struct {
	from   []enums.SettlementStatus
	to     enums.SettlementStatus
	action enums.AuditAction
	reason string
	apply  func(record *models.SettlementRecord, now time.Time)
}

func (s *service) updateStatus(ctx context.Context, actor audit.Actor, orderID uuid.UUID, input updateStatusInput) (*models.SettlementRecord, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var updated *models.SettlementRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.GetByOrderID(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "settlement record not found")
		}

		allowed := false
		for _, status := range input.from {
			if record.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return statusConflict(record.Status, input.from...)
		}

		before := *record
		record.Status = input.to
		if input.apply != nil {
			input.apply(record, s.now().UTC())
		}

		if err := repo.Update(ctx, record); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     input.action,
			TargetType: "settlement_record",
			TargetID:   record.ID,
			Before:     before,
			After:      record,
			Reason:     input.reason,
		}); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func statusConflict(current enums.SettlementStatus, expected ...enums.SettlementStatus) error {
	expectedStrings := make([]string, len(expected))
	for i, status := range expected {
		expectedStrings[i] = status.String()
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "settlement record status disallows this operation").
		WithDetails(map[string]any{
			"current":  current.String(),
			"expected": expectedStrings,
		})
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	}
	return err
}
