package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/radarcache/radarcache/internal/api/http"
	"github.com/radarcache/radarcache/internal/cache"
	"github.com/radarcache/radarcache/internal/config"
	"github.com/radarcache/radarcache/internal/metrics"
	"github.com/radarcache/radarcache/internal/radar"
	"github.com/radarcache/radarcache/internal/scheduler"
	"github.com/radarcache/radarcache/internal/store"
	"github.com/radarcache/radarcache/internal/workflow"
	"github.com/radarcache/radarcache/internal/workflow/drivers"
)

func main() {
	// Load configuration (reads .env if present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Folder-based cache storage.
	fileStore, err := store.NewFileStore(cfg.CacheDir, cfg.FrameCount, cfg.Timezone)
	if err != nil {
		log.Fatalf("failed to open cache directory: %v", err)
	}

	// Shared HTTP client for outbound browser-agent calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	driver := drivers.NewAgentDriver(httpClient, cfg.BrowserAgentURL)

	// Acquisition workflow over the remote browser agent.
	engine := workflow.NewEngine(workflow.DefaultSteps(), cfg.DisabledSteps)
	runner := workflow.NewRunner(engine, driver, fileStore, cfg.FrameCount)

	// Core service coordinating cache reads and background acquisitions.
	service := cache.New(fileStore, radar.NewActiveRegistry(), metrics.NewEstimator(cfg.MetricsWindow), runner, cache.Config{
		Validity:         cfg.CacheValidity,
		FrameCount:       cfg.FrameCount,
		Concurrency:      cfg.Concurrency,
		Timezone:         cfg.Timezone,
		BaseOverhead:     cfg.BaseOverhead,
		TileRenderWait:   cfg.TileRenderWait,
		PerFrameOverhead: cfg.PerFrameOverhead,
		Debug:            cfg.Debug,
	})

	// Crash recovery: folders left incomplete by a previous run are garbage.
	if removed, err := service.CleanupIncompleteOnStartup(); err != nil {
		log.Printf("startup cleanup: %v", err)
	} else if removed > 0 {
		log.Printf("startup cleanup: removed %d incomplete folder(s)", removed)
	}

	// Background refresh and retention loops.
	sched := scheduler.New(service, driver, scheduler.Config{
		RefreshInterval: cfg.RefreshInterval,
		StartupDelay:    cfg.StartupDelay,
		StaggerDelay:    cfg.StaggerDelay,
		Retention:       cfg.Retention,
		CleanupInterval: cfg.CleanupInterval,
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "radarcache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
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

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "radarcache",
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
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}

	// Let in-flight acquisitions finish writing their folders.
	service.Wait()
}
