package payments

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/enutrac/payments/internal/pkg/gateway"
)

// CheckoutInput is the normalized input for checkout initiation.
type CheckoutInput struct {
	UserID  uint                 `validate:"required"`
	PlanID  uint                 `validate:"required"`
	Gateway string               `validate:"required,oneof=telebirr stripe"`
	Mode    gateway.CheckoutMode `validate:"omitempty,oneof=hosted embedded"`
	Email   string               `validate:"omitempty,email"`
	Name    string               `validate:"max=200"`
}

func (in *CheckoutInput) Validate() error {
	v := validator.New()

	return v.Struct(in)
}

// CheckoutOutput is returned to the initiating caller. Exactly one of
// CheckoutURL or ClientSecret is set, depending on the checkout mode.
type CheckoutOutput struct {
	OrderID      string `json:"orderId"`
	SessionID    string `json:"sessionId,omitempty"`
	CheckoutURL  string `json:"checkoutUrl,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// CallbackResult describes what a callback delivery did to the ledger.
type CallbackResult struct {
	OrderID string
	Status  string
	// Applied is true when this delivery won the conditional update.
	Applied bool
	// Duplicate is true when the order was already terminal; the delivery
	// is acknowledged without side effects.
	Duplicate bool
	// Ignored is true for verified events with no order outcome.
	Ignored bool
}

// ConfirmationNotifier receives best-effort post-completion notifications.
// Implementations must never block the callback path; failures are the
// notifier's problem to retry and log.
type ConfirmationNotifier interface {
	PaymentConfirmed(email, externalOrderID, planName string, endDate time.Time) error
}
