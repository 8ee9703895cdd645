package payments

import (
	"fmt"

	"github.com/enutrac/payments/app/models"
	"github.com/enutrac/payments/internal/pkg/gateway"
)

// targetStatus maps a verified gateway outcome onto the terminal order
// status the dispatcher should apply. A lapsed session cancels the order
// rather than failing it, so sweeps and cancellations stay distinguishable.
func targetStatus(outcome gateway.Outcome) (string, error) {
	switch outcome {
	case gateway.OutcomeCompleted:
		return models.OrderStatusCompleted, nil
	case gateway.OutcomeFailed:
		return models.OrderStatusFailed, nil
	case gateway.OutcomeExpired:
		return models.OrderStatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown gateway outcome %q", outcome)
	}
}

// isTerminalStatus reports whether a status is absorbing. Transitions
// attempted from a terminal state are successful no-ops: the conditional
// update simply affects zero rows.
func isTerminalStatus(status string) bool {
	return status != models.OrderStatusPending
}
