package controllers

import (
	"net/http"

	"github.com/cargolink/cargolink-backend/api/middleware"
	"github.com/cargolink/cargolink-backend/api/responses"
	"github.com/cargolink/cargolink-backend/api/validators"
	"github.com/cargolink/cargolink-backend/internal/closing"
	"github.com/cargolink/cargolink-backend/pkg/db/types"
	"github.com/cargolink/cargolink-backend/pkg/logger"
)

type extraCostRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64  `json:"unitPrice" validate:"required,gt=0"`
}

type submitClosingRequest struct {
	DeliveredCount int64              `json:"deliveredCount" validate:"gte=0"`
	ReturnedCount  int64              `json:"returnedCount" validate:"gte=0"`
	EtcCount       int64              `json:"etcCount" validate:"gte=0"`
	ExtraCosts     []extraCostRequest `json:"extraCosts" validate:"dive"`
	PhotoRefs      []string           `json:"photoRefs" validate:"max=30,dive,max=500"`
}

type correctClosingRequest struct {
	DeliveredCount int64              `json:"deliveredCount" validate:"gte=0"`
	ReturnedCount  int64              `json:"returnedCount" validate:"gte=0"`
	EtcCount       int64              `json:"etcCount" validate:"gte=0"`
	ExtraCosts     []extraCostRequest `json:"extraCosts" validate:"dive"`
	Reason         string             `json:"reason" validate:"required,max=2000"`
}

func toExtraCosts(items []extraCostRequest) types.ExtraCosts {
	if len(items) == 0 {
		return nil
	}
	costs := make(types.ExtraCosts, 0, len(items))
	for _, item := range items {
		costs = append(costs, types.ExtraCost{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return costs
}

// SubmitClosingReport records the helper's delivery evidence for a working
// order.
func SubmitClosingReport(svc closing.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req submitClosingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Submit(r.Context(), actor, orderID, closing.SubmitInput{
			DeliveredCount: req.DeliveredCount,
			ReturnedCount:  req.ReturnedCount,
			EtcCount:       req.EtcCount,
			ExtraCosts:     toExtraCosts(req.ExtraCosts),
			PhotoRefs:      types.PhotoRefs(req.PhotoRefs),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, report)
	}
}

// GetClosingReport returns the closing report for an order.
func GetClosingReport(svc closing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.GetByOrderID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// ApproveClosingReport fixes the settlement figures, closes the order and
// emits the settlement notification, all in one transaction.
func ApproveClosingReport(svc closing.Service, logg *logger.Logger) http.HandlerFunc {
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

		record, err := svc.Approve(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// CorrectClosingReport replaces the report counts before settlement
// progresses; the reason is mandatory and audited.
func CorrectClosingReport(svc closing.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req correctClosingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Correct(r.Context(), actor, orderID, closing.CorrectInput{
			DeliveredCount: req.DeliveredCount,
			ReturnedCount:  req.ReturnedCount,
			EtcCount:       req.EtcCount,
			ExtraCosts:     toExtraCosts(req.ExtraCosts),
			Reason:         req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
