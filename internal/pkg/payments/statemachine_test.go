package payments

import (
	"testing"

	"github.com/enutrac/payments/app/models"
	"github.com/enutrac/payments/internal/pkg/gateway"
)

func TestTargetStatus(t *testing.T) {
	tests := []struct {
		outcome gateway.Outcome
		want    string
	}{
		{outcome: gateway.OutcomeCompleted, want: models.OrderStatusCompleted},
		{outcome: gateway.OutcomeFailed, want: models.OrderStatusFailed},
		{outcome: gateway.OutcomeExpired, want: models.OrderStatusCancelled},
	}

	for _, tt := range tests {
		got, err := targetStatus(tt.outcome)
		if err != nil {
			t.Fatalf("targetStatus(%q): %v", tt.outcome, err)
		}
		if got != tt.want {
			t.Fatalf("targetStatus(%q) = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestTargetStatus_UnknownOutcome(t *testing.T) {
	if _, err := targetStatus("refunded"); err == nil {
		t.Fatalf("expected error for unknown outcome")
	}
}

func TestIsTerminalStatus(t *testing.T) {
	if isTerminalStatus(models.OrderStatusPending) {
		t.Fatalf("PENDING must not be terminal")
	}
	for _, s := range []string{
		models.OrderStatusCompleted,
		models.OrderStatusFailed,
		models.OrderStatusCancelled,
	} {
		if !isTerminalStatus(s) {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
