package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/enutrac/payments/app/controllers"
	"github.com/enutrac/payments/app/repository"
	"github.com/enutrac/payments/internal/pkg/cache"
	"github.com/enutrac/payments/internal/pkg/database"
	"github.com/enutrac/payments/internal/pkg/env"
	"github.com/enutrac/payments/internal/pkg/gateway"
	"github.com/enutrac/payments/internal/pkg/gateway/stripegw"
	"github.com/enutrac/payments/internal/pkg/gateway/telebirr"
	"github.com/enutrac/payments/internal/pkg/mail"
	"github.com/enutrac/payments/internal/pkg/notify"
	"github.com/enutrac/payments/internal/pkg/payments"
	"github.com/enutrac/payments/internal/pkg/router"
	"github.com/enutrac/payments/internal/pkg/scheduler"
	"github.com/enutrac/payments/internal/pkg/sweeper"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	// Notification queue feeding the SMTP mailer.
	workers, _ := strconv.Atoi(env.GetEnv("NOTIFY_WORKERS", "2"))
	queue := notify.NewQueue(cache.GetClient(), mail.SendMail, workers)
	queue.Start()

	svc := payments.NewService(
		repos,
		buildGateways(),
		queue,
		env.GetEnv("PAYMENT_RETURN_URL", "http://localhost:3000/payment/success"),
		env.GetEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/payment/cancel"),
	)
	controllers.SetPaymentService(svc)

	// Background jobs: order expiry sweep, subscription expiry, reminders.
	sched := scheduler.New()
	sw := sweeper.New(repos, sched)
	if err := sw.Register(); err != nil {
		log.Fatalf("[Main] could not register background jobs: %v", err)
	}
	sched.Start()
	controllers.InitializeAdminController(sched, sw)

	app := fiber.New(fiber.Config{
		AppName: "payments",
	})
	app.Use(recover.New(), logger.New())
	router.InstallRouter(app)

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Main] server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] shutting down")
	_ = app.Shutdown()
	sched.Stop()
	queue.Stop()
}

// buildGateways registers every gateway whose credentials are configured.
func buildGateways() []gateway.Gateway {
	var gws []gateway.Gateway

	if env.GetEnv("TELEBIRR_APP_ID", "") != "" {
		tb, err := telebirr.NewClientFromEnv()
		if err != nil {
			log.Fatalf("[Main] telebirr configuration invalid: %v", err)
		}
		gws = append(gws, tb)
		log.Info("[Main] telebirr gateway registered")
	}

	if env.GetEnv("STRIPE_SECRET_KEY", "") != "" {
		gws = append(gws, stripegw.NewClientFromEnv())
		log.Info("[Main] stripe gateway registered")
	}

	if len(gws) == 0 {
		log.Warn("[Main] no payment gateway configured; checkout initiation will fail")
	}
	return gws
}
