package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/enutrac/payments/app/models"
	"github.com/enutrac/payments/app/repository"
	"github.com/enutrac/payments/internal/pkg/gateway"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrOrderNotFound marks a verified callback referencing no known order.
// The ledger is left untouched; the delivery is logged as an anomaly.
var ErrOrderNotFound = errors.New("order not found")

// ErrUnknownGateway marks a request naming a gateway with no registered
// adapter.
var ErrUnknownGateway = errors.New("unknown payment gateway")

// ErrFreePlan rejects checkout initiation for the non-payable free tier.
var ErrFreePlan = errors.New("cannot process payment for free plan")

// Service drives checkout initiation and callback dispatch. It holds no
// order state of its own: every mutation goes through the repository's
// conditional update, so any number of service instances can run against
// the same database.
type Service struct {
	orders   repository.OrderRepository
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	gateways map[string]gateway.Gateway
	notifier ConfirmationNotifier

	returnURL string
	cancelURL string
}

// NewService builds a payment service over the given repositories and
// gateway adapters. notifier may be nil when confirmations are disabled.
func NewService(repos *repository.Repositories, gws []gateway.Gateway, notifier ConfirmationNotifier, returnURL, cancelURL string) *Service {
	byName := make(map[string]gateway.Gateway, len(gws))
	for _, gw := range gws {
		byName[gw.Name()] = gw
	}
	return &Service{
		orders:    repos.Order,
		subs:      repos.Subscription,
		plans:     repos.Plan,
		gateways:  byName,
		notifier:  notifier,
		returnURL: returnURL,
		cancelURL: cancelURL,
	}
}

// newExternalOrderID builds the merchant-visible order id. It is kept
// strictly alphanumeric because the signed gateway strips everything else
// from merchant order ids and the callback must still match.
func newExternalOrderID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return "ORDER" + strconv.FormatInt(time.Now().UnixMilli(), 10) + suffix
}

// InitiateCheckout creates the PENDING order first, then asks the gateway
// for a checkout session. A failed gateway call leaves the order PENDING
// and returns the typed gateway error; the sweeper resolves such orders.
func (s *Service) InitiateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutOutput, error) {
	plan, err := s.plans.GetByID(in.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("plan %d not found", in.PlanID)
		}
		return nil, err
	}
	if plan.IsFree() {
		return nil, ErrFreePlan
	}

	gw, ok := s.gateways[in.Gateway]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, in.Gateway)
	}

	mode := in.Mode
	if mode == "" {
		mode = gateway.ModeHosted
	}

	order := &models.Order{
		ExternalOrderID: newExternalOrderID(),
		UserID:          in.UserID,
		CustomerEmail:   in.Email,
		PlanID:          plan.ID,
		Amount:          plan.Price,
		Currency:        plan.Currency,
		Gateway:         gw.Name(),
		Status:          models.OrderStatusPending,
	}
	if err := s.orders.Create(order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	result, err := gw.CreateCheckout(ctx, gateway.CheckoutRequest{
		ExternalOrderID: order.ExternalOrderID,
		Amount:          plan.Price,
		Currency:        plan.Currency,
		PlanName:        plan.Name,
		ReturnURL:       s.returnURL,
		CancelURL:       s.cancelURL,
		Mode:            mode,
		Customer: gateway.Customer{
			UserID: in.UserID,
			Email:  in.Email,
			Name:   in.Name,
		},
	})
	if err != nil {
		log.Errorf("[Payments] checkout creation failed for order %s on %s: %v",
			order.ExternalOrderID, gw.Name(), err)
		return nil, err
	}

	if err := s.orders.SetGatewaySession(order.ID, result.SessionID); err != nil {
		// The session id is diagnostic only; callbacks resolve orders by
		// external order id, so losing it is not fatal.
		log.Warnf("[Payments] could not store session id for order %s: %v", order.ExternalOrderID, err)
	}

	return &CheckoutOutput{
		OrderID:      order.ExternalOrderID,
		SessionID:    result.SessionID,
		CheckoutURL:  result.CheckoutURL,
		ClientSecret: result.ClientSecret,
	}, nil
}

// HandleCallback is the single entry point for gateway deliveries. The
// steps are ordered and not reorderable: verify, resolve, map, conditional
// update, then side effects only for the delivery that won the update.
func (s *Service) HandleCallback(ctx context.Context, gatewayName string, rawBody []byte, headers map[string]string) (*CallbackResult, error) {
	gw, ok := s.gateways[gatewayName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, gatewayName)
	}

	event, err := gw.VerifyCallback(rawBody, headers)
	if err != nil {
		if errors.Is(err, gateway.ErrEventUnsupported) {
			log.Infof("[Payments] ignoring %s event: %v", gatewayName, err)
			return &CallbackResult{Ignored: true}, nil
		}
		return nil, err
	}

	order, err := s.orders.GetByExternalOrderID(event.ExternalOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, event.ExternalOrderID)
		}
		return nil, err
	}

	toStatus, err := targetStatus(event.Outcome)
	if err != nil {
		return nil, err
	}

	applied, err := s.orders.UpdateStatusIfPending(event.ExternalOrderID, toStatus, event.ExternalTxID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The order was already terminal. Duplicate deliveries are success:
		// acknowledge and perform no further side effects.
		log.Infof("[Payments] duplicate delivery for order %s (already %s)",
			order.ExternalOrderID, order.Status)
		return &CallbackResult{
			OrderID:   order.ExternalOrderID,
			Status:    order.Status,
			Duplicate: true,
		}, nil
	}

	if toStatus == models.OrderStatusCompleted {
		if err := s.activateSubscription(order); err != nil {
			return nil, err
		}
	}

	log.Infof("[Payments] order %s transitioned %s -> %s via %s",
		order.ExternalOrderID, models.OrderStatusPending, toStatus, gatewayName)
	return &CallbackResult{
		OrderID: order.ExternalOrderID,
		Status:  toStatus,
		Applied: true,
	}, nil
}

// activateSubscription runs only for the delivery that actually moved the
// order PENDING -> COMPLETED, so the extension is applied exactly once.
func (s *Service) activateSubscription(order *models.Order) error {
	plan, err := s.plans.GetByID(order.PlanID)
	if err != nil {
		return fmt.Errorf("resolve plan for completed order %s: %w", order.ExternalOrderID, err)
	}

	endDate := time.Now().AddDate(0, 0, plan.DurationDays)
	sub, err := s.subs.UpsertActive(order.UserID, plan.ID, endDate)
	if err != nil {
		return fmt.Errorf("activate subscription for order %s: %w", order.ExternalOrderID, err)
	}

	if s.notifier != nil && order.CustomerEmail != "" {
		// Best effort: a failing notification channel never delays or
		// fails payment acknowledgement.
		if err := s.notifier.PaymentConfirmed(order.CustomerEmail, order.ExternalOrderID, plan.Name, sub.EndDate); err != nil {
			log.Errorf("[Payments] confirmation enqueue failed for order %s: %v", order.ExternalOrderID, err)
		}
	}
	return nil
}

// CancelExpiredSession cancels an order after its checkout session lapsed.
// It only applies while the order is still PENDING; anything terminal is a
// no-op.
func (s *Service) CancelExpiredSession(externalOrderID string) (bool, error) {
	return s.orders.UpdateStatusIfPending(externalOrderID, models.OrderStatusCancelled, "")
}
