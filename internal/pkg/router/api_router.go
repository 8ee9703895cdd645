package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/enutrac/payments/app/controllers"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	payment := api.Group("/payment", limiter.New(limiter.Config{Max: 60}))
	payment.Post("/pay", controllers.HandleInitiatePayment)
	payment.Get("/status/:orderId", controllers.HandlePaymentStatus)
	payment.Get("/history", controllers.HandlePaymentHistory)

	// Gateway callbacks are server-to-server and must not sit behind the
	// client rate limiter.
	api.Post("/payment/callback/telebirr", controllers.HandleTelebirrCallback)
	api.Post("/payment/callback/stripe", controllers.HandleStripeWebhook)

	api.Get("/plans", controllers.HandleListPlans)
	api.Get("/subscription", controllers.HandleSubscriptionStatus)
}
