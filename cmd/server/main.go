package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyalty-attendance-backend/internal/config"
	"loyalty-attendance-backend/internal/handlers"
	"loyalty-attendance-backend/internal/notifier"
	"loyalty-attendance-backend/internal/queue"
	"loyalty-attendance-backend/internal/repositories"
	"loyalty-attendance-backend/internal/services"
	"loyalty-attendance-backend/internal/worker"
	"loyalty-attendance-backend/pkg/database"
	"loyalty-attendance-backend/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// Initialize database
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	// Run migrations
	if err := repositories.AutoMigrate(db); err != nil {
		log.Fatalf("Migration error: %v", err)
	}

	// Initialize repositories
	repo := repositories.NewRepository(db)

	// Task queue
	taskQueue, err := queue.NewClient(cfg.RabbitURL, cfg.RabbitExchange, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("RabbitMQ connection error: %v", err)
	}
	defer taskQueue.Close()

	// Outbound webhook (disabled when no URL is configured)
	var hooks services.Notifier
	if cfg.NotifyWebhookURL != "" {
		hooks = notifier.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout)
	}

	// Initialize services
	authSvc := services.NewAuthService(repo, cfg)
	personaSvc := services.NewPersonaService(repo)
	qrSvc := services.NewQrCodeService(repo, cfg)
	ledger := services.NewAttendanceService(repo)
	eventSvc := services.NewEventService(repo, qrSvc, cfg.DefaultGracePeriodHours)
	scanSvc := services.NewScanService(repo, qrSvc, hooks)
	bonusSvc := services.NewBonusService(repo)
	scheduler := services.NewSchedulerService(repo, taskQueue, bonusSvc, hooks,
		cfg.TaskMaxAttempts, cfg.TaskRetryBackoff)
	militantSvc := services.NewMilitantService(repo, qrSvc, hooks)

	// Start the task consumer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	taskWorker := worker.New(taskQueue, scheduler)
	if err := taskWorker.Start(ctx); err != nil {
		log.Fatalf("Task worker error: %v", err)
	}

	// Initialize handlers
	handler := handlers.NewHandler(
		authSvc, personaSvc, eventSvc, scanSvc, ledger,
		qrSvc, bonusSvc, scheduler, militantSvc, cfg,
	)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Loyalty Attendance API",
		ErrorHandler: handlers.ErrorHandler,
	})

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// QR image directory and static serving
	if err := os.MkdirAll(cfg.QRDir, 0755); err != nil {
		log.Fatalf("Failed to create QR directory: %v", err)
	}
	app.Static("/qrcodes", cfg.QRDir)

	// Register routes
	api := app.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Printf("🚀 Server starting on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	taskWorker.Stop()
	log.Println("Server stopped gracefully")
}
