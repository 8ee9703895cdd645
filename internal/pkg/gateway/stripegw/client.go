package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/enutrac/payments/internal/pkg/env"
	"github.com/enutrac/payments/internal/pkg/gateway"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Client implements gateway.Gateway by delegating to Stripe's own checkout
// session and webhook-signature primitives.
type Client struct {
	api           *client.API
	webhookSecret string
}

// NewClient builds a Stripe gateway client with the given secret key and
// webhook signing secret.
func NewClient(apiKey, webhookSecret string) *Client {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Client{api: api, webhookSecret: webhookSecret}
}

// NewClientFromEnv builds a client from STRIPE_* environment variables.
func NewClientFromEnv() *Client {
	return NewClient(
		env.GetEnv("STRIPE_SECRET_KEY", ""),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)
}

func (c *Client) Name() string {
	return "stripe"
}

// CreateCheckout creates a checkout session. The caller-requested mode
// selects the variant: hosted sessions return a redirect URL, embedded
// sessions return a client secret for the in-page payment element.
func (c *Client) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResult, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ExternalOrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(int64(math.Round(req.Amount * 100))),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.PlanName),
				},
			},
		}},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}

	if req.Mode == gateway.ModeEmbedded {
		params.UIMode = stripe.String(string(stripe.CheckoutSessionUIModeEmbedded))
		params.ReturnURL = stripe.String(req.ReturnURL)
	} else {
		params.SuccessURL = stripe.String(req.ReturnURL)
		params.CancelURL = stripe.String(req.CancelURL)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	result := &gateway.CheckoutResult{SessionID: sess.ID}
	if req.Mode == gateway.ModeEmbedded {
		result.ClientSecret = sess.ClientSecret
	} else {
		result.CheckoutURL = sess.URL
	}
	return result, nil
}

// VerifyCallback validates the event envelope with Stripe's signature
// primitive and maps the event type to an order outcome. Verification is
// unconditional; there is no bypass.
func (c *Client) VerifyCallback(rawBody []byte, headers map[string]string) (*gateway.VerifiedEvent, error) {
	sig := headers["Stripe-Signature"]
	event, err := webhook.ConstructEvent(rawBody, sig, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrSignatureInvalid, err)
	}

	var outcome gateway.Outcome
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		outcome = gateway.OutcomeCompleted
	case "checkout.session.async_payment_failed":
		outcome = gateway.OutcomeFailed
	case "checkout.session.expired":
		outcome = gateway.OutcomeExpired
	default:
		return nil, fmt.Errorf("%w: %s", gateway.ErrEventUnsupported, event.Type)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode session payload: %v", gateway.ErrSignatureInvalid, err)
	}
	if sess.ClientReferenceID == "" {
		return nil, fmt.Errorf("%w: session has no client_reference_id", gateway.ErrSignatureInvalid)
	}

	txID := ""
	if sess.PaymentIntent != nil {
		txID = sess.PaymentIntent.ID
	}

	return &gateway.VerifiedEvent{
		ExternalOrderID: sess.ClientReferenceID,
		Outcome:         outcome,
		ExternalTxID:    txID,
	}, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			return &gateway.RejectedError{Status: stripeErr.HTTPStatusCode, Reason: stripeErr.Msg}
		}
	}
	return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
}
