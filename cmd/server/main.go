package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/districtsmiles/appointment-booking/internal/booking"
	"github.com/districtsmiles/appointment-booking/internal/config"
	"github.com/districtsmiles/appointment-booking/internal/database"
	"github.com/districtsmiles/appointment-booking/internal/gateway"
	"github.com/districtsmiles/appointment-booking/internal/handler"
	"github.com/districtsmiles/appointment-booking/internal/middleware"
	"github.com/districtsmiles/appointment-booking/internal/queue"
	"github.com/districtsmiles/appointment-booking/internal/repository"
	"github.com/districtsmiles/appointment-booking/internal/router"
	queue_publisher "github.com/districtsmiles/appointment-booking/internal/service"
	"github.com/districtsmiles/appointment-booking/pkg/logging"
)

func main() {
	// Load .env when present; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer db.Close()

	// Repositories
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	appointments := repository.NewAppointmentRepo(db)
	schedules := repository.NewScheduleRepo(db)
	services := repository.NewServiceRepo(db)
	payments := repository.NewPaymentRepo(db)

	// Payment gateway and the reconciler it feeds
	paymongo := gateway.NewPayMongoService(cfg.PayMongoSecretKey, logger)
	notifier := queue_publisher.NewConfirmationNotifier(appointments, services, schedules, payments, users, logger)
	reconciler := booking.NewReconciler(appointments, payments, services, paymongo, notifier, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(cfg, users, tokens)
	browseHandler := handler.NewBrowseHandler(schedules, services)
	appointmentHandler := handler.NewAppointmentHandler(cfg, appointments, schedules, services, payments, paymongo)
	paymentHandler := handler.NewPaymentHandler(cfg.PayMongoWebhookSecret, reconciler, logger)
	staffHandler := handler.NewStaffHandler(appointments, payments)

	e := echo.New()

	// Redis-backed rate limiting and response caching; both degrade to
	// no-ops when Redis is unreachable.  The rate limiter is global,
	// but the response cache only ever fronts the public browse routes:
	// its keys carry no user identity, so it must never see an
	// authenticated or state-changing endpoint.
	var browseMW []echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
		browseMW = append(browseMW, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	} else {
		logger.Warn("redis unavailable, rate limiting and caching disabled")
	}

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret)
	router.RegisterPublic(e, browseHandler, browseMW...)
	router.RegisterPatient(e, appointmentHandler, cfg.JWTSecret)
	router.RegisterPayments(e, paymentHandler)
	router.RegisterStaff(e, staffHandler, cfg.JWTSecret)

	// The sweeper frees slots whose payment window lapsed.
	sweeper := booking.NewSweeper(appointments, cfg.PaymentWindow, cfg.SweepInterval, logger)
	go sweeper.Run(context.Background())

	// Broker consumer that turns confirmation events into receipt lines.
	go func() {
		if err := queue.StartConfirmationConsumer(); err != nil {
			logger.Error("confirmation consumer stopped", "error", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
