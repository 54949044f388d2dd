package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cargolink/cargolink-backend/api/middleware"
	"github.com/cargolink/cargolink-backend/api/responses"
	"github.com/cargolink/cargolink-backend/api/validators"
	"github.com/cargolink/cargolink-backend/internal/orders"
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/logger"
)

type registerOrderRequest struct {
	RequesterID string `json:"requesterId" validate:"omitempty,uuid"`
	UnitPrice   int64  `json:"unitPrice" validate:"required,gt=0"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	Urgent      bool   `json:"urgent"`
	Notes       string `json:"notes" validate:"max=2000"`
}

// RegisterOrder creates an order in approval_pending and pins the pricing
// policy snapshot in the same transaction. Requesters register for
// themselves; admins may register on behalf of a requester.
func RegisterOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req registerOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requesterID := actor.ID
		if req.RequesterID != "" {
			parsed, parseErr := uuid.Parse(req.RequesterID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid requester id"))
				return
			}
			if parsed != actor.ID && actor.Role != "admin" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot register orders for another requester"))
				return
			}
			requesterID = parsed
		}

		order, err := svc.Register(r.Context(), actor, orders.RegisterInput{
			RequesterID: requesterID,
			UnitPrice:   req.UnitPrice,
			Quantity:    req.Quantity,
			Urgent:      req.Urgent,
			Notes:       req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// GetOrder returns the full order detail including contract, closing report
// and settlement when present.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ListOrders pages a requester's orders. Requesters see their own orders;
// admins pass requesterId explicitly.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requesterID := actor.ID
		if raw := strings.TrimSpace(r.URL.Query().Get("requesterId")); raw != "" {
			parsed, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid requester id"))
				return
			}
			if parsed != actor.ID && actor.Role != "admin" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another requester's orders"))
				return
			}
			requesterID = parsed
		}

		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), requesterID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type transitionOrderRequest struct {
	To     string `json:"to" validate:"required"`
	Reason string `json:"reason" validate:"max=2000"`
}

// TransitionOrder moves the order along the lifecycle. Legacy status names
// are accepted and normalized before validation.
func TransitionOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req transitionOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		to, err := enums.ParseOrderStatus(req.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		order, err := svc.Transition(r.Context(), actor, orderID, to, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type matchOrderRequest struct {
	HelperID      string `json:"helperId" validate:"required,uuid"`
	DepositAmount int64  `json:"depositAmount" validate:"gte=0"`
	FinalAmount   int64  `json:"finalAmount" validate:"required,gt=0"`
}

// MatchOrder binds a helper to the order and creates the payment contract.
func MatchOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req matchOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		helperID, err := uuid.Parse(req.HelperID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid helper id"))
			return
		}

		order, err := svc.Match(r.Context(), actor, orderID, orders.MatchInput{
			HelperID:      helperID,
			DepositAmount: req.DepositAmount,
			FinalAmount:   req.FinalAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
