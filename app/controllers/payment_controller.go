package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/enutrac/payments/app/repository"
	"github.com/enutrac/payments/internal/pkg/gateway"
	"github.com/enutrac/payments/internal/pkg/payments"
)

var paymentService *payments.Service

// SetPaymentService wires the shared payment service into the handlers.
// Called once from main before routes are installed.
func SetPaymentService(svc *payments.Service) {
	paymentService = svc
}

type payRequest struct {
	UserID  uint   `json:"userId"`
	PlanID  uint   `json:"planId"`
	Gateway string `json:"gateway"`
	Mode    string `json:"mode"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// HandleInitiatePayment starts a checkout for a plan on the requested
// gateway and returns the redirect URL or client secret.
func HandleInitiatePayment(c *fiber.Ctx) error {
	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed request body"})
	}

	in := payments.CheckoutInput{
		UserID:  req.UserID,
		PlanID:  req.PlanID,
		Gateway: req.Gateway,
		Mode:    gateway.CheckoutMode(req.Mode),
		Email:   req.Email,
		Name:    req.Name,
	}
	if in.Mode == "" {
		in.Mode = gateway.ModeHosted
	}
	if err := in.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := paymentService.InitiateCheckout(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrFreePlan):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "free_plan", "message": "Cannot process payment for free plan"})
		case errors.Is(err, payments.ErrUnknownGateway):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_gateway", "message": "Unsupported payment gateway"})
		case errors.Is(err, gateway.ErrUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable", "message": "Payment gateway is unavailable, please retry"})
		}
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "gateway_rejected", "message": rejected.Reason})
		}
		log.Errorf("[Payment] checkout initiation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to initiate payment"})
	}

	return c.Status(fiber.StatusOK).JSON(out)
}

// HandleTelebirrCallback processes the server-to-server payment
// notification. Deliveries that fail signature verification are rejected;
// everything verified is acknowledged, including duplicates.
func HandleTelebirrCallback(c *fiber.Ctx) error {
	return handleGatewayCallback(c, "telebirr")
}

// HandleStripeWebhook processes Stripe webhook events.
func HandleStripeWebhook(c *fiber.Ctx) error {
	return handleGatewayCallback(c, "stripe")
}

func handleGatewayCallback(c *fiber.Ctx, gatewayName string) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := paymentService.HandleCallback(ctx, gatewayName, rawBody, headers)
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			log.Warnf("[Payment] rejected %s callback with invalid signature", gatewayName)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		if errors.Is(err, payments.ErrOrderNotFound) {
			log.Warnf("[Payment] %s callback for unknown order: %v", gatewayName, err)
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_not_found"})
		}
		// Anything else is absorbed: the delivery is acknowledged and the
		// order, still PENDING, is resolved by a redelivery or the sweeper.
		log.Errorf("[Payment] %s callback processing failed: %v", gatewayName, err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}

	if result.Ignored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if result.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "orderId": result.OrderID, "status": result.Status})
}

// HandlePaymentStatus returns the current state of one order by its
// external order ID.
func HandlePaymentStatus(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	if orderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing order ID"})
	}

	repo := repository.GetGlobalFactory().GetOrderRepository()
	order, err := repo.GetByExternalOrderID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load order"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orderId":       order.ExternalOrderID,
		"status":        order.Status,
		"gateway":       order.Gateway,
		"amount":        order.Amount,
		"currency":      order.Currency,
		"transactionId": order.ExternalTransactionID,
		"createdAt":     order.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":     order.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// HandlePaymentHistory lists a user's recent orders, newest first.
func HandlePaymentHistory(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Query("userId"), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing or invalid userId"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	repo := repository.GetGlobalFactory().GetOrderRepository()
	orders, err := repo.GetByUserID(uint(userID), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load orders"})
	}

	items := make([]fiber.Map, 0, len(orders))
	for _, order := range orders {
		items = append(items, fiber.Map{
			"orderId":   order.ExternalOrderID,
			"planId":    order.PlanID,
			"status":    order.Status,
			"gateway":   order.Gateway,
			"amount":    order.Amount,
			"currency":  order.Currency,
			"createdAt": order.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"orders": items})
}

// HandleListPlans returns the purchasable plans.
func HandleListPlans(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetPlanRepository()
	plans, err := repo.GetActive()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plans"})
	}

	items := make([]fiber.Map, 0, len(plans))
	for _, plan := range plans {
		items = append(items, fiber.Map{
			"id":           plan.ID,
			"name":         plan.Name,
			"price":        plan.Price,
			"currency":     plan.Currency,
			"durationDays": plan.DurationDays,
			"deviceLimit":  plan.DeviceLimit,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"plans": items})
}

// HandleSubscriptionStatus returns the user's current subscription.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Query("userId"), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing or invalid userId"})
	}

	repo := repository.GetGlobalFactory().GetSubscriptionRepository()
	sub, err := repo.GetByUserID(uint(userID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"planId":        sub.PlanID,
		"status":        sub.Status,
		"endDate":       sub.EndDate.UTC().Format(time.RFC3339),
		"daysRemaining": sub.DaysRemaining(time.Now()),
	})
}
