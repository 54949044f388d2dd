package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/api/middleware"
	"github.com/cargolink/cargolink-backend/api/responses"
	"github.com/cargolink/cargolink-backend/api/validators"
	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/settlement"
	"github.com/cargolink/cargolink-backend/pkg/logger"
)

// SettlementFigures returns the authoritative settlement for an order. The
// stored record wins; figures are recomputed only when no record exists yet.
func SettlementFigures(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		figures, err := svc.Figures(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, figures)
	}
}

// ApproveSettlement moves the record from calculated to approved.
func ApproveSettlement(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return settlementAction(logg, func(r *http.Request, a actionArgs) (any, error) {
		return svc.Approve(r.Context(), a.actor, a.orderID)
	}, false)
}

// PaySettlement marks an approved settlement as paid out.
func PaySettlement(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return settlementAction(logg, func(r *http.Request, a actionArgs) (any, error) {
		return svc.MarkPaid(r.Context(), a.actor, a.orderID)
	}, false)
}

// CancelSettlement voids a settlement before payout; the reason is mandatory.
func CancelSettlement(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return settlementAction(logg, func(r *http.Request, a actionArgs) (any, error) {
		return svc.Cancel(r.Context(), a.actor, a.orderID, a.reason)
	}, true)
}

// DisputeSettlement freezes a settlement pending investigation.
func DisputeSettlement(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return settlementAction(logg, func(r *http.Request, a actionArgs) (any, error) {
		return svc.Dispute(r.Context(), a.actor, a.orderID, a.reason)
	}, true)
}

type resolveDisputeRequest struct {
	DamageDeduction int64  `json:"damageDeduction" validate:"gte=0"`
	Reason          string `json:"reason" validate:"required,max=2000"`
}

// ResolveSettlementDispute closes a dispute, applying a damage deduction to
// the payout.
func ResolveSettlementDispute(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.ResolveDispute(r.Context(), actor, orderID, req.DamageDeduction, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

type actionArgs struct {
	actor   audit.Actor
	orderID uuid.UUID
	reason  string
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// settlementAction factors the shared shape of the status-change endpoints:
// resolve the actor and order id, optionally require a reason body, run the
// service call.
func settlementAction(logg *logger.Logger, run func(*http.Request, actionArgs) (any, error), needsReason bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		args := actionArgs{actor: actor, orderID: orderID}
		if needsReason {
			var req reasonRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			args.reason = req.Reason
		}

		result, err := run(r, args)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
