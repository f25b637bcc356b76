package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/cadastre/internal/adapters/http"
	natsadapter "github.com/samirrijal/cadastre/internal/adapters/nats"
	"github.com/samirrijal/cadastre/internal/adapters/postgres"
	"github.com/samirrijal/cadastre/internal/adapters/valkey"
	"github.com/samirrijal/cadastre/internal/core/ports"
	"github.com/samirrijal/cadastre/internal/core/survey"
	"github.com/samirrijal/cadastre/internal/core/usecases"
	"github.com/samirrijal/cadastre/internal/pkg/config"
	"github.com/samirrijal/cadastre/internal/pkg/logging"
	"github.com/samirrijal/cadastre/internal/pkg/telemetry"
	"github.com/samirrijal/cadastre/internal/workflows"
)

func main() {
	cfg, err := config.Load("cadastre-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{}

	// Ports stay nil interfaces when their backend is down; a typed nil
	// pointer would defeat the service's nil checks.
	var (
		repo      ports.PlanRepository
		publisher ports.EventPublisher
		cacheSvc  ports.CacheService
		archiver  ports.PlanArchiver
	)

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Warn("database unavailable, plans are kept in memory only", "error", err)
	} else {
		defer db.Close()
		deps.DB = db
		repo = postgres.NewPlanRepo(db)
	}

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		deps.Cache = cache
		cacheSvc = cache
	}

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		deps.NATS = pub.Conn()
		publisher = pub
	}

	// Separate connection for the WebSocket relay
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer sub.Close()
		deps.Events = sub
	}

	// Temporal
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		slog.Warn("temporal unavailable, archiving disabled", "error", err)
	} else {
		defer tc.Close()
		archiver = workflows.NewArchiver(tc, cfg.Temporal.TaskQueue)
	}

	opts := survey.Options{
		CaptureRadius:       cfg.Survey.CaptureRadius,
		AdjustmentTolerance: cfg.Survey.AdjustmentTolerance,
	}
	deps.Plans = usecases.NewPlanService(repo, publisher, cacheSvc, archiver, opts, cfg.Survey.CacheTTL)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // large plans post many points
		AppName:      "Cadastre Survey API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
