package gateway

import (
	"context"
	"errors"
	"fmt"
)

// CheckoutMode selects how the caller wants to run the gateway checkout.
type CheckoutMode string

const (
	// ModeHosted redirects the user to a gateway-hosted checkout page.
	ModeHosted CheckoutMode = "hosted"
	// ModeEmbedded confirms the payment in-page via a client secret.
	ModeEmbedded CheckoutMode = "embedded"
)

// Customer carries the buyer details a gateway needs for a checkout.
type Customer struct {
	UserID uint
	Email  string
	Name   string
}

// CheckoutRequest is the provider-agnostic input for CreateCheckout.
type CheckoutRequest struct {
	ExternalOrderID string
	Amount          float64
	Currency        string
	PlanName        string
	ReturnURL       string
	CancelURL       string
	Mode            CheckoutMode
	Customer        Customer
}

// CheckoutResult is a tagged variant: hosted checkouts fill CheckoutURL,
// embedded checkouts fill ClientSecret. SessionID is always set.
type CheckoutResult struct {
	SessionID    string
	CheckoutURL  string
	ClientSecret string
}

// Outcome is the provider-neutral result of a verified callback event.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeExpired reports a checkout session that lapsed without payment.
	OutcomeExpired Outcome = "expired"
)

// VerifiedEvent is the result of a successful callback verification.
type VerifiedEvent struct {
	ExternalOrderID string
	Outcome         Outcome
	ExternalTxID    string
}

// Gateway is the capability each payment provider implements once. The
// dispatcher treats all implementations uniformly.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	// VerifyCallback verifies an inbound delivery and extracts the event.
	// It fails closed: any verification error returns ErrSignatureInvalid.
	VerifyCallback(rawBody []byte, headers map[string]string) (*VerifiedEvent, error)
}

// ErrUnavailable marks network-level failures talking to a gateway. The
// order stays PENDING and the caller may retry.
var ErrUnavailable = errors.New("payment gateway unavailable")

// ErrSignatureInvalid marks a callback that failed verification. It is the
// only callback error surfaced to the gateway as a rejection.
var ErrSignatureInvalid = errors.New("invalid callback signature")

// ErrEventUnsupported marks a verified delivery whose event type has no
// order outcome. The dispatcher acknowledges it without touching the ledger.
var ErrEventUnsupported = errors.New("unsupported event type")

// RejectedError carries a 4xx rejection from the provider back to the
// initiating caller.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request (status %d): %s", e.Status, e.Reason)
}

// ProtocolError marks a response the client could not decode. RawBody is
// kept for diagnostics; a decode failure must never default to success.
type ProtocolError struct {
	RawBody string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed gateway response: %v (body: %s)", e.Err, e.RawBody)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
