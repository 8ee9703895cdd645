package router

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/enutrac/payments/app/controllers"
	"github.com/enutrac/payments/internal/pkg/env"
)

type AdminRouter struct {
}

func NewAdminRouter() *AdminRouter {
	return &AdminRouter{}
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	admin := app.Group("/api/admin", requireAdminToken)
	admin.Get("/scheduler", controllers.HandleSchedulerStatus)
	admin.Post("/sweep", controllers.HandleTriggerSweep)
	admin.Put("/sweep/settings", controllers.HandleUpdateSweepSettings)
}

// requireAdminToken guards the admin API with a static bearer token from
// the environment. A missing ADMIN_API_TOKEN disables the admin API.
func requireAdminToken(c *fiber.Ctx) error {
	expected := env.GetEnv("ADMIN_API_TOKEN", "")
	if expected == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	got := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}
