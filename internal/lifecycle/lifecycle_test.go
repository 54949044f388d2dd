package lifecycle

import (
	"testing"

	"github.com/cargolink/cargolink-backend/pkg/enums"
	pkgerrors "github.com/cargolink/cargolink-backend/pkg/errors"
)

func TestTransitionMatrix(t *testing.T) {
	allowed := map[enums.OrderStatus][]enums.OrderStatus{
		enums.OrderStatusApprovalPending: {enums.OrderStatusRegistering, enums.OrderStatusCancelled},
		enums.OrderStatusRegistering:     {enums.OrderStatusMatching, enums.OrderStatusCancelled},
		enums.OrderStatusMatching:        {enums.OrderStatusScheduled, enums.OrderStatusCancelled},
		enums.OrderStatusScheduled:       {enums.OrderStatusWorking, enums.OrderStatusCancelled},
		enums.OrderStatusWorking:         {enums.OrderStatusClosed, enums.OrderStatusCancelled},
		enums.OrderStatusClosed:          {},
		enums.OrderStatusCancelled:       {},
	}

	statuses := []enums.OrderStatus{
		enums.OrderStatusApprovalPending,
		enums.OrderStatusRegistering,
		enums.OrderStatusMatching,
		enums.OrderStatusScheduled,
		enums.OrderStatusWorking,
		enums.OrderStatusClosed,
		enums.OrderStatusCancelled,
	}

	for _, from := range statuses {
		allowedSet := map[enums.OrderStatus]bool{}
		for _, to := range allowed[from] {
			allowedSet[to] = true
		}
		for _, to := range statuses {
			got := CanTransition(from, to)
			if got != allowedSet[to] {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, allowedSet[to])
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []enums.OrderStatus{enums.OrderStatusClosed, enums.OrderStatusCancelled} {
		if next := AllowedNext(terminal); len(next) != 0 {
			t.Errorf("AllowedNext(%s) = %v, want empty", terminal, next)
		}
	}
}

func TestValidateDisallowedTransition(t *testing.T) {
	err := Validate(enums.OrderStatusApprovalPending, enums.OrderStatusWorking)
	if err == nil {
		t.Fatal("expected invalid transition error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("got %v, want code %s", err, pkgerrors.CodeInvalidTransition)
	}
}

func TestValidateUnknownStatus(t *testing.T) {
	err := Validate(enums.OrderStatus("bogus"), enums.OrderStatusWorking)
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("got %v, want code %s", err, pkgerrors.CodeValidation)
	}
}

func TestValidateAllowedTransition(t *testing.T) {
	if err := Validate(enums.OrderStatusWorking, enums.OrderStatusClosed); err != nil {
		t.Fatalf("working->closed should be allowed: %v", err)
	}
}
