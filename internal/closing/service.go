package closing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/integration"
	"github.com/cargolink/cargolink-backend/internal/lifecycle"
	"github.com/cargolink/cargolink-backend/internal/orders"
	"github.com/cargolink/cargolink-backend/internal/policy"
	"github.com/cargolink/cargolink-backend/internal/settlement"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/db/types"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
)

// Service owns closing report submission, approval and correction. Approval
// is the moment the settlement becomes authoritative.
type Service interface {
	Submit(ctx context.Context, actor audit.Actor, orderID uuid.UUID, input SubmitInput) (*models.ClosingReport, error)
	Approve(ctx context.Context, actor audit.Actor, orderID uuid.UUID) (*models.SettlementRecord, error)
	Correct(ctx context.Context, actor audit.Actor, orderID uuid.UUID, input CorrectInput) (*models.ClosingReport, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.ClosingReport, error)
}

// SubmitInput is the helper's declared delivery evidence.
type SubmitInput struct {
	DeliveredCount int64
	ReturnedCount  int64
	EtcCount       int64
	ExtraCosts     types.ExtraCosts
	PhotoRefs      types.PhotoRefs
}

// CorrectInput replaces the report counts after the fact. Reason is mandatory.
type CorrectInput struct {
	DeliveredCount int64
	ReturnedCount  int64
	EtcCount       int64
	ExtraCosts     types.ExtraCosts
	Reason         string
}

type invariantNotifier interface {
	NotifySettlementInvariant(ctx context.Context, orderID uuid.UUID, message string) error
}

// ServiceParams wires the closing service dependencies.
type ServiceParams struct {
	Tx          db.TxRunner
	Repo        Repository
	Orders      orders.Repository
	Snapshots   policy.Repository
	Settlements settlement.Repository
	Events      integration.Repository
	Audit       audit.Recorder
	Notifier    invariantNotifier
	Now         func() time.Time
}

type service struct {
	tx          db.TxRunner
	repo        Repository
	orders      orders.Repository
	snapshots   policy.Repository
	settlements settlement.Repository
	events      integration.Repository
	audit       audit.Recorder
	notifier    invariantNotifier
	now         func() time.Time
}

// NewService wires a closing service from its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("closing repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("policy repository required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("integration repository required")
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
		tx:          params.Tx,
		repo:        params.Repo,
		orders:      params.Orders,
		snapshots:   params.Snapshots,
		settlements: params.Settlements,
		events:      params.Events,
		audit:       params.Audit,
		notifier:    params.Notifier,
		now:         now,
	}, nil
}

// Submit records the helper's evidence while the order is in working.
func (s *service) Submit(ctx context.Context, actor audit.Actor, orderID uuid.UUID, input SubmitInput) (*models.ClosingReport, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if err := validateCounts(input.DeliveredCount, input.ReturnedCount, input.EtcCount, input.ExtraCosts); err != nil {
		return nil, err
	}

	var created *models.ClosingReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).GetByID(ctx, orderID)
		if err != nil {
			return orderNotFoundOr(err)
		}
		if order.Status != enums.OrderStatusWorking {
			return pkgerrors.New(pkgerrors.CodeConflict, "closing report requires an order in working").
				WithDetails(map[string]any{"status": order.Status.String()})
		}
		if order.HelperID == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order has no assigned helper")
		}

		report := &models.ClosingReport{
			OrderID:        order.ID,
			HelperID:       *order.HelperID,
			DeliveredCount: input.DeliveredCount,
			ReturnedCount:  input.ReturnedCount,
			EtcCount:       input.EtcCount,
			ExtraCosts:     input.ExtraCosts,
			PhotoRefs:      input.PhotoRefs,
		}
		if err := s.repo.WithTx(tx).Create(ctx, report); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "closing report already submitted")
			}
			return err
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionClosingSubmitted,
			TargetType: "closing_report",
			TargetID:   report.ID,
			After:      report,
		}); err != nil {
			return err
		}
		created = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Approve turns the submitted evidence into the authoritative settlement:
// run the calculator against the policy snapshot, persist the record, close
// the order, audit. One transaction; a calculator failure leaves nothing
// behind.
func (s *service) Approve(ctx context.Context, actor audit.Actor, orderID uuid.UUID) (*models.SettlementRecord, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var record *models.SettlementRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		order, err := ordersRepo.GetByID(ctx, orderID)
		if err != nil {
			return orderNotFoundOr(err)
		}
		if err := lifecycle.Validate(order.Status, enums.OrderStatusClosed); err != nil {
			return err
		}

		reportRepo := s.repo.WithTx(tx)
		report, err := reportRepo.GetByOrderID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "closing report not found")
			}
			return err
		}
		if report.Approved {
			return pkgerrors.New(pkgerrors.CodeConflict, "closing report already approved")
		}

		snapshot, err := s.snapshots.WithTx(tx).GetByOrderID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "policy snapshot not found")
			}
			return err
		}

		result, err := settlement.Calculate(settlement.CalcInput{
			DeliveredCount: report.DeliveredCount,
			ReturnedCount:  report.ReturnedCount,
			EtcCount:       report.EtcCount,
			UnitPrice:      snapshot.UnitPrice,
			ExtraCosts:     report.ExtraCosts,
			Urgent:         order.Urgent,
			Snapshot:       snapshot,
		})
		if err != nil {
			return err
		}

		now := s.now().UTC()
		record = &models.SettlementRecord{
			OrderID:         order.ID,
			Status:          enums.SettlementStatusCalculated,
			SupplyAmount:    result.SupplyAmount,
			VATAmount:       result.VATAmount,
			FinalTotal:      result.FinalTotal,
			PlatformFee:     result.PlatformFee,
			DamageDeduction: result.DamageDeduction,
			DriverPayout:    result.DriverPayout,
		}
		if err := s.settlements.WithTx(tx).Create(ctx, record); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "settlement record already exists")
			}
			return err
		}

		report.Approved = true
		report.ApprovedAt = &now
		actorID := actor.ID
		report.ApprovedBy = &actorID
		if err := reportRepo.Update(ctx, report); err != nil {
			return err
		}

		if err := ordersRepo.UpdateStatusVersioned(ctx, order, enums.OrderStatusClosed, now); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionClosingApproved,
			TargetType: "order",
			TargetID:   order.ID,
			After: map[string]any{
				"settlementId": record.ID,
				"finalTotal":   record.FinalTotal,
				"driverPayout": record.DriverPayout,
			},
		}); err != nil {
			return err
		}

		event, err := integration.NewNotificationEvent(order.ID, "settlement.calculated", map[string]any{
			"settlementId": record.ID,
			"finalTotal":   record.FinalTotal,
			"driverPayout": record.DriverPayout,
		}, now)
		if err != nil {
			return err
		}
		return s.events.WithTx(tx).Create(ctx, event)
	})
	if err != nil {
		s.escalateInvariant(ctx, orderID, err)
		return nil, err
	}
	return record, nil
}

// escalateInvariant surfaces a calculator invariant violation to an operator.
// It runs after the transaction rolled back so the notification survives; the
// caller still sees the original error.
func (s *service) escalateInvariant(ctx context.Context, orderID uuid.UUID, err error) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeSettlementInvariant {
		return
	}
	_ = s.notifier.NotifySettlementInvariant(ctx, orderID, typed.Error())
}

// Correct replaces the report counts through the audited correction path.
// Once a settlement record moved past calculated, the money side is frozen
// and corrections are rejected.
func (s *service) Correct(ctx context.Context, actor audit.Actor, orderID uuid.UUID, input CorrectInput) (*models.ClosingReport, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correction reason is required")
	}
	if err := validateCounts(input.DeliveredCount, input.ReturnedCount, input.EtcCount, input.ExtraCosts); err != nil {
		return nil, err
	}

	var corrected *models.ClosingReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reportRepo := s.repo.WithTx(tx)
		report, err := reportRepo.GetByOrderID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "closing report not found")
			}
			return err
		}

		settlementRepo := s.settlements.WithTx(tx)
		record, err := settlementRepo.GetByOrderID(ctx, orderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if record != nil && record.Status != enums.SettlementStatusCalculated {
			return pkgerrors.New(pkgerrors.CodeConflict, "settlement already progressed; correction disallowed").
				WithDetails(map[string]any{"settlementStatus": record.Status.String()})
		}

		before := *report
		report.DeliveredCount = input.DeliveredCount
		report.ReturnedCount = input.ReturnedCount
		report.EtcCount = input.EtcCount
		report.ExtraCosts = input.ExtraCosts
		actorID := actor.ID
		report.CorrectedBy = &actorID
		reason := input.Reason
		report.CorrectionReason = &reason
		if err := reportRepo.Update(ctx, report); err != nil {
			return err
		}

		// The authoritative record tracks the corrected evidence while it is
		// still only calculated.
		if record != nil {
			order, err := s.orders.WithTx(tx).GetByID(ctx, orderID)
			if err != nil {
				return orderNotFoundOr(err)
			}
			snapshot, err := s.snapshots.WithTx(tx).GetByOrderID(ctx, orderID)
			if err != nil {
				return err
			}
			result, err := settlement.Calculate(settlement.CalcInput{
				DeliveredCount:  report.DeliveredCount,
				ReturnedCount:   report.ReturnedCount,
				EtcCount:        report.EtcCount,
				UnitPrice:       snapshot.UnitPrice,
				ExtraCosts:      report.ExtraCosts,
				Urgent:          order.Urgent,
				Snapshot:        snapshot,
				DamageDeduction: record.DamageDeduction,
			})
			if err != nil {
				return err
			}
			record.SupplyAmount = result.SupplyAmount
			record.VATAmount = result.VATAmount
			record.FinalTotal = result.FinalTotal
			record.PlatformFee = result.PlatformFee
			record.DriverPayout = result.DriverPayout
			if err := settlementRepo.Update(ctx, record); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionClosingCorrected,
			TargetType: "closing_report",
			TargetID:   report.ID,
			Before:     before,
			After:      report,
			Reason:     input.Reason,
		}); err != nil {
			return err
		}
		corrected = report
		return nil
	})
	if err != nil {
		s.escalateInvariant(ctx, orderID, err)
		return nil, err
	}
	return corrected, nil
}

func (s *service) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.ClosingReport, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	report, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "closing report not found")
		}
		return nil, err
	}
	return report, nil
}

func validateCounts(delivered, returned, etc int64, extras types.ExtraCosts) error {
	if delivered < 0 || returned < 0 || etc < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "closing counts must not be negative")
	}
	for _, cost := range extras {
		if cost.Name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "extra cost items need a name")
		}
		if cost.Quantity < 0 || cost.UnitPrice < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "extra cost items must not be negative").
				WithDetails(map[string]any{"item": cost.Name})
		}
	}
	return nil
}

func orderNotFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	return err
}
