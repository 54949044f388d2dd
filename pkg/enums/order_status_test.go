package enums

import "testing"

func TestParseOrderStatusAliases(t *testing.T) {
	cases := map[string]OrderStatus{
		"waiting":          OrderStatusApprovalPending,
		"register":         OrderStatusRegistering,
		"matched":          OrderStatusScheduled,
		"doing":            OrderStatusWorking,
		"done":             OrderStatusClosed,
		"cancel":           OrderStatusCancelled,
		"approval_pending": OrderStatusApprovalPending,
		"registering":      OrderStatusRegistering,
		"matching":         OrderStatusMatching,
		"scheduled":        OrderStatusScheduled,
		"working":          OrderStatusWorking,
		"closed":           OrderStatusClosed,
		"cancelled":        OrderStatusCancelled,
	}

	for raw, want := range cases {
		got, err := ParseOrderStatus(raw)
		if err != nil {
			t.Errorf("ParseOrderStatus(%q) returned error: %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("ParseOrderStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestParseOrderStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	if !OrderStatusClosed.IsTerminal() || !OrderStatusCancelled.IsTerminal() {
		t.Error("closed and cancelled must be terminal")
	}
	if OrderStatusWorking.IsTerminal() {
		t.Error("working must not be terminal")
	}
}
