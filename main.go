package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classforge/classroom-service/internal/config"
	"github.com/classforge/classroom-service/internal/events"
	"github.com/classforge/classroom-service/internal/repositories/postgres"
	"github.com/classforge/classroom-service/internal/scheduler"
	"github.com/classforge/classroom-service/internal/services"
	"github.com/classforge/classroom-service/internal/validator"
	"github.com/classforge/classroom-service/pkg"
	"github.com/classforge/classroom-service/pkg/ai"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize validator
	v := validator.New()

	// Initialize AI evaluator
	var evaluator ai.Evaluator
	if cfg.OpenAIAPIKey != "" {
		evaluator, err = ai.NewOpenAIEvaluator(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.OpenAITimeout,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("Failed to initialize AI evaluator: %v", err)
		}
	} else {
		logger.Warn("OpenAI API key not set, free-text answers will require manual review")
		evaluator = ai.NewDisabledEvaluator()
	}

	// Initialize event publisher
	var publisher events.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = events.NewKafkaEventPublisher(cfg.KafkaBrokers, logger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
	} else {
		logger.Warn("Kafka brokers not set, events will not leave the process")
		publisher = events.NewMockEventPublisher(logger)
	}

	// Initialize services
	serviceManager := services.NewServiceManager(
		db, repoManager.GetRepository(), logger, v, evaluator, publisher,
		services.ServiceManagerConfig{
			LogLevel:       cfg.LogLevel,
			Location:       cfg.Location(),
			DefaultTimeout: 30 * time.Second,
		},
	)
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Start the deadline sweep scheduler
	sched := scheduler.New(serviceManager.Sweeper(), logger, cfg.Location())
	if err := sched.Start(cfg.SweepCron); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	logger.Info("Service started", "environment", cfg.Environment, "sweep_spec", cfg.SweepCron)

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the scheduler first so no sweep starts mid-shutdown
	if err := sched.Stop(ctx); err != nil {
		log.Printf("Failed to stop scheduler: %v", err)
	}

	// Shutdown services
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	// Close repository connections
	if err := repoManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown repositories: %v", err)
	}

	logger.Info("Service exited")
}
