package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"civic-automation/internal/config"
	"civic-automation/internal/domain"
	"civic-automation/internal/handler"
	"civic-automation/internal/middleware"
	"civic-automation/internal/realtime"
	"civic-automation/internal/repository"
	"civic-automation/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	zl, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	db, err := config.NewPostgresDB(cfg)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redis, err := config.NewRedisClient(cfg)
	if err != nil {
		zl.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	minioClient, err := config.NewMinIOClient(cfg)
	if err != nil {
		zl.Warn("Failed to connect to MinIO, using embedded email templates", zap.Error(err))
		minioClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, minioClient, cfg, zl)

	rtLogger := zl.Named("realtime")
	hub := realtime.NewHub(16, rtLogger)
	broker := realtime.NewRedisBroker(redis, hub, rtLogger)
	listener := config.NewListener(cfg, rtLogger)
	defer listener.Close()
	bridge := realtime.NewBridge(listener, repos.Notification, broker, rtLogger)

	go func() {
		if err := broker.Run(ctx); err != nil {
			zl.Error("realtime.broker_failed", zap.Error(err))
		}
	}()
	go func() {
		if err := bridge.Run(ctx); err != nil {
			zl.Error("realtime.bridge_failed", zap.Error(err))
		}
	}()

	if cfg.SchedulerEnabled {
		if err := services.Scheduler.Start(ctx); err != nil {
			zl.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	handlers := handler.NewHandlers(services, hub)

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	setupRoutes(app, handlers, cfg)

	go func() {
		zl.Info("Server starting", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := services.Close(shutdownCtx); err != nil {
		zl.Error("Background work did not finish", zap.Error(err))
	}
}

func setupRoutes(app *fiber.App, h *handler.Handlers, cfg *config.Config) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/push/public-key", h.Push.PublicKey)

	protected := v1.Group("", middleware.AuthRequired(cfg.JWTSecret))

	notifications := protected.Group("/notifications")
	notifications.Get("/", h.Notification.List)
	notifications.Get("/unread-count", h.Notification.GetUnreadCount)
	notifications.Get("/stream", h.Stream.Notifications)
	notifications.Patch("/:id/read", h.Notification.MarkAsRead)
	notifications.Post("/mark-all-read", h.Notification.MarkAllAsRead)

	settings := protected.Group("/notification-settings")
	settings.Get("/", h.NotificationSettings.GetAll)
	settings.Put("/", h.NotificationSettings.BulkUpdate)
	settings.Put("/:type", h.NotificationSettings.Update)

	push := protected.Group("/push/subscriptions")
	push.Post("/", h.Push.Subscribe)
	push.Get("/", h.Push.List)
	push.Delete("/:id", h.Push.Delete)

	admin := protected.Group("/admin", middleware.RequireRole(domain.RoleAdmin))
	admin.Get("/notifications", h.Notification.ListAll)
	admin.Get("/jobs", h.Scheduling.Overview)
	admin.Get("/jobs/:jobType", h.Scheduling.GetJobStatistics)
	admin.Post("/jobs/:jobType/trigger", h.Scheduling.Trigger)
	admin.Put("/jobs/:jobType/schedule", h.Scheduling.UpdateSchedule)
	admin.Post("/scheduling/pause", h.Scheduling.Pause)
	admin.Post("/scheduling/resume", h.Scheduling.Resume)
}
