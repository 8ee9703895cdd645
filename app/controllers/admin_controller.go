package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/enutrac/payments/app/models"
	"github.com/enutrac/payments/app/repository"
	"github.com/enutrac/payments/internal/pkg/scheduler"
	"github.com/enutrac/payments/internal/pkg/sweeper"
)

var (
	adminScheduler *scheduler.Scheduler
	adminSweeper   *sweeper.Sweeper
)

// InitializeAdminController wires the scheduler and sweeper into the admin
// handlers. Called once from main before routes are installed.
func InitializeAdminController(sched *scheduler.Scheduler, sw *sweeper.Sweeper) {
	adminScheduler = sched
	adminSweeper = sw
}

// HandleSchedulerStatus lists the registered background jobs with their
// schedules and last run times.
func HandleSchedulerStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"jobs": adminScheduler.Status()})
}

// HandleTriggerSweep runs the order expiry sweep immediately.
func HandleTriggerSweep(c *fiber.Ctx) error {
	swept, err := adminSweeper.SweepOrders()
	if err != nil {
		log.Errorf("[Admin] manual sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "swept": swept})
}

type sweepSettingsRequest struct {
	Enabled     *bool   `json:"enabled"`
	Schedule    *string `json:"schedule"`
	CutoffHours *int    `json:"cutoffHours"`
}

// HandleUpdateSweepSettings persists sweep configuration and re-registers
// the jobs so changes take effect without a restart.
func HandleUpdateSweepSettings(c *fiber.Ctx) error {
	var req sweepSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed request body"})
	}

	settings := repository.GetGlobalFactory().GetSettingRepository()
	if req.Enabled != nil {
		if err := settings.SetValue(models.SettingSweepEnabled, strconv.FormatBool(*req.Enabled)); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_update_failed"})
		}
	}
	if req.Schedule != nil {
		if err := settings.SetValue(models.SettingSweepSchedule, *req.Schedule); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_update_failed"})
		}
	}
	if req.CutoffHours != nil {
		if *req.CutoffHours <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "cutoffHours must be positive"})
		}
		if err := settings.SetValue(models.SettingSweepCutoffHours, strconv.Itoa(*req.CutoffHours)); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_update_failed"})
		}
	}

	if err := adminSweeper.Register(); err != nil {
		// Settings are stored but the schedule did not parse.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_schedule", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
