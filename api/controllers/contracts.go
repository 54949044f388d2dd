package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/cargolink/cargolink-backend/api/middleware"
	"github.com/cargolink/cargolink-backend/api/responses"
	"github.com/cargolink/cargolink-backend/api/validators"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
	"github.com/cargolink/cargolink-backend/pkg/gateway"
	"github.com/cargolink/cargolink-backend/pkg/logger"
)

// GetContract returns the payment contract for an order match.
func GetContract(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractID, err := parseUUIDParam(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contract, err := svc.Get(r.Context(), contractID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

type recordPaymentRequest struct {
	GatewayPaymentID string `json:"gatewayPaymentId" validate:"max=200"`
	SourceID         string `json:"sourceId" validate:"max=200"`
}

// paymentCharger is the gateway surface the payment endpoint needs.
type paymentCharger interface {
	CreatePayment(ctx context.Context, params gateway.PaymentCreateParams) (*sq.Payment, error)
}

// RecordContractPayment marks a deposit or balance phase paid. The caller
// either hands over the id of a payment already made on the gateway, or a
// payment source to charge; in the second case the endpoint creates the
// gateway payment first, tagged with the contract reference so the webhook
// recognizes it. The gateway webhook drives the same service path, so
// recording stays idempotent per phase.
func RecordContractPayment(svc contracts.Service, charger paymentCharger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contractID, err := parseUUIDParam(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		phase, err := contracts.ParsePaymentPhase(strings.TrimSpace(chi.URLParam(r, "phase")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID := strings.TrimSpace(req.GatewayPaymentID)
		sourceID := strings.TrimSpace(req.SourceID)
		if (paymentID == "") == (sourceID == "") {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "provide exactly one of gatewayPaymentId or sourceId"))
			return
		}

		if sourceID != "" {
			paymentID, err = chargeContract(r, svc, charger, contractID, phase, sourceID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		contract, err := svc.RecordPayment(r.Context(), actor, contractID, phase, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

// chargeContract creates the gateway payment for the phase amount. The
// reference id ties the payment back to the contract, which is also what the
// webhook parses on delivery.
func chargeContract(r *http.Request, svc contracts.Service, charger paymentCharger, contractID uuid.UUID, phase contracts.PaymentPhase, sourceID string) (string, error) {
	if charger == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}

	contract, err := svc.Get(r.Context(), contractID)
	if err != nil {
		return "", err
	}
	amount := contract.DepositAmount
	if phase == contracts.PaymentPhaseBalance {
		amount = contract.BalanceAmount
	}
	if amount <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "contract phase amount must be positive")
	}

	payment, err := charger.CreatePayment(r.Context(), gateway.PaymentCreateParams{
		Amount:         amount,
		Currency:       "KRW",
		SourceID:       sourceID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Note:           "contract " + string(phase),
		OrderRef:       contractID.String() + ":" + string(phase),
	})
	if err != nil {
		return "", err
	}
	id := payment.GetID()
	if id == nil || *id == "" {
		return "", pkgerrors.New(pkgerrors.CodeIntegration, "gateway returned a payment without an id")
	}
	return *id, nil
}
