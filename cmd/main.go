package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"authz_service/internal/config"
	mongodb "authz_service/internal/database/mongo"
	redisdb "authz_service/internal/database/redis"
	"authz_service/internal/events"
	"authz_service/internal/handlers"
	"authz_service/internal/metrics"
	"authz_service/internal/repository"
	"authz_service/internal/service"
	"authz_service/pkg/discovery"

	"github.com/gofiber/fiber/v3"
	"github.com/robfig/cron/v3"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/var", "log", "authz_service")
	err := os.MkdirAll(logDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Printf("Warning: Failed to set up file logging, using stderr: %v", err)
	} else {
		defer logFile.Close()
	}

	cfg := config.New()
	ctx := context.Background()
	m := metrics.New()

	// Backends: in-memory by default, Redis/Mongo when configured.
	var sessionRepo repository.SessionRepository = repository.NewInMemorySessionRepository()
	if cfg.RedisAddress != "" {
		redisClient, err := redisdb.Connect(ctx, &redisdb.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("Fatal error connecting to Redis: %v", err)
		}
		defer redisClient.Close()
		sessionRepo = repository.NewRedisSessionRepository(redisClient)
		log.Println("Using Redis session repository")
	}

	var grantRepo repository.GrantRepository = repository.NewInMemoryGrantRepository()
	userDirectory := repository.UserDirectory(repository.NewInMemoryUserDirectory())
	var verifier service.PasswordVerifier
	if inMem, ok := userDirectory.(*repository.InMemoryUserDirectory); ok {
		verifier = inMem
	}
	if cfg.MongoURI != "" {
		mongoClient, db, err := mongodb.Connect(ctx, mongodb.DefaultConfig(cfg.MongoURI, cfg.MongoDatabase))
		if err != nil {
			log.Fatalf("Fatal error connecting to MongoDB: %v", err)
		}
		defer mongoClient.Disconnect(ctx)
		grantRepo = repository.NewMongoGrantRepository(db)
		userDirectory = repository.NewMongoUserDirectory(db)
		verifier = nil
		log.Println("Using MongoDB grant repository and user directory")
	}

	eventPublisher, err := events.NewEventPublisher(cfg.RabbitMQURI)
	if err != nil {
		log.Fatalf("Fatal error creating event publisher: %v", err)
	}
	defer eventPublisher.Close()

	roleService := service.NewRoleService()
	grantService := service.NewGrantService(grantRepo, eventPublisher)
	permissionService := service.NewPermissionService(roleService, grantService, m)
	editingService := service.NewEditingService(cfg.MaxEditingSessions, eventPublisher, m)
	jwtService := service.NewJWTService(cfg.JWTSecret)
	sessionService := service.NewSessionService(
		sessionRepo, userDirectory, verifier, jwtService, eventPublisher, m,
		cfg.MaxSessionsPerUser, cfg.SessionTTLHours, cfg.RememberMeDays,
	)

	deactivationHandler := service.NewDeactivationHandler(sessionService, grantService, permissionService)
	consumer, err := events.NewEventConsumer(cfg.RabbitMQURI, deactivationHandler)
	if err != nil {
		log.Fatalf("Fatal error creating event consumer: %v", err)
	}
	if err := consumer.Start(); err != nil {
		log.Printf("Warning: Failed to start event consumer: %v", err)
	}
	defer consumer.Close()

	// Periodic expiry sweep, in addition to lazy expiry on read.
	scheduler := cron.New()
	sweepSpec := fmt.Sprintf("@every %dm", cfg.CleanupIntervalMinutes)
	if _, err := scheduler.AddFunc(sweepSpec, func() {
		sessionService.CleanupExpiredSessions(context.Background())
	}); err != nil {
		log.Fatalf("Fatal error scheduling session sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.Status(200).SendString("OK")
	})

	handlers.NewPermissionHandler(permissionService).RegisterRoutes(app)
	handlers.NewEditingHandler(editingService, permissionService).RegisterRoutes(app)
	handlers.NewSessionHandler(sessionService, permissionService).RegisterRoutes(app)

	go func() {
		log.Printf("Starting metrics server on port %s", cfg.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.MetricsPort, m.Handler()); err != nil {
			log.Printf("Warning: metrics server stopped: %v", err)
		}
	}()

	if cfg.ConsulAddress != "" {
		registry, err := discovery.NewServiceRegistry(cfg)
		if err != nil {
			log.Fatalf("Service Discovery Init Failed: %s", err)
		}
		if err := registry.Register(); err != nil {
			log.Printf("Warning: Failed to register with Consul: %v", err)
		} else {
			defer registry.Deregister()
		}
	}

	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)

	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	<-shutdownChan
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	<-doneChan
	log.Println("Server exited, goodbye!")
}
