package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"

	httpapi "github.com/mtnpow/snow-data-aggregation/internal/api/http"
	"github.com/mtnpow/snow-data-aggregation/internal/config"
	"github.com/mtnpow/snow-data-aggregation/internal/scheduler"
	"github.com/mtnpow/snow-data-aggregation/internal/snow"
	"github.com/mtnpow/snow-data-aggregation/internal/snow/sources"
	"github.com/mtnpow/snow-data-aggregation/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Database pool, raw table, and views.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	pgStore := store.NewPostgres(pool)
	if err := pgStore.Init(ctx); err != nil {
		cancel()
		log.Fatalf("failed to initialize schema: %v", err)
	}
	cancel()
	log.Println("INFO: connected to PostgreSQL, schema ready")

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Source adapters. Each is an independent failure domain.
	srcs := []snow.Source{
		sources.NewSnotelSource(httpClient, cfg.SnotelBaseURL, cfg.SnotelStationLimit),
		sources.NewWeatherUnlockedSource(httpClient, cfg.WeatherUnlockedBaseURL,
			cfg.WeatherUnlockedAppID, cfg.WeatherUnlockedAPIKey),
	}

	// Core service orchestrating sources and store.
	service := snow.NewService(pgStore, srcs)

	// Optional periodic fetch (FETCH_INTERVAL > 0).
	sched := scheduler.New(cfg.FetchInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "snow-data-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute, // a synchronous fetch polls every SNOTEL station
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Liveness plus database reachability.
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := service.Health(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unreachable")
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "snow-data-aggregation",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
