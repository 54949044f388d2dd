package lifecycle

import (
	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
)

// transitions is the complete order lifecycle graph. Cancellation edges are
// added for every non-terminal status; everything else must follow the
// forward chain. Closed and cancelled have no outgoing edges.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusApprovalPending: {enums.OrderStatusRegistering, enums.OrderStatusCancelled},
	enums.OrderStatusRegistering:     {enums.OrderStatusMatching, enums.OrderStatusCancelled},
	enums.OrderStatusMatching:        {enums.OrderStatusScheduled, enums.OrderStatusCancelled},
	enums.OrderStatusScheduled:       {enums.OrderStatusWorking, enums.OrderStatusCancelled},
	enums.OrderStatusWorking:         {enums.OrderStatusClosed, enums.OrderStatusCancelled},
	enums.OrderStatusClosed:          {},
	enums.OrderStatusCancelled:       {},
}

// CanTransition reports whether the graph allows moving from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedNext returns the statuses reachable from the given status.
func AllowedNext(from enums.OrderStatus) []enums.OrderStatus {
	next := transitions[from]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// Validate returns a typed invalid-transition error when the move is not in
// the graph. Unknown statuses are validation errors, not transition errors.
func Validate(from, to enums.OrderStatus) error {
	if !from.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown current order status").
			WithDetails(map[string]any{"status": from.String()})
	}
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown target order status").
			WithDetails(map[string]any{"status": to.String()})
	}
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status transition disallowed").
			WithDetails(map[string]any{
				"from":    from.String(),
				"to":      to.String(),
				"allowed": statusStrings(AllowedNext(from)),
			})
	}
	return nil
}

func statusStrings(statuses []enums.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
