package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/classforge/classroom-service/internal/events"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/classforge/classroom-service/internal/validator"
	"github.com/classforge/classroom-service/pkg/ai"
	"gorm.io/gorm"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	LogLevel slog.Level

	// Location is the timezone assignment deadlines are interpreted in
	Location *time.Location

	DefaultTimeout time.Duration
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	evaluator ai.Evaluator
	publisher events.EventPublisher
	config    ServiceManagerConfig

	// Service instances
	assessmentService AssessmentService
	attemptService    AttemptService
	gradingService    GradingService
	submissionService SubmissionService
	sweeperService    SweeperService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, evaluator ai.Evaluator, publisher events.EventPublisher, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		evaluator: evaluator,
		publisher: publisher,
		config:    config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, evaluator ai.Evaluator, publisher events.EventPublisher) ServiceManager {
	config := ServiceManagerConfig{
		LogLevel:       slog.LevelInfo,
		Location:       time.UTC,
		DefaultTimeout: 30 * time.Second,
	}

	return NewServiceManager(db, repo, logger, validator, evaluator, publisher, config)
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.assessmentService = NewAssessmentService(sm.repo, sm.db, sm.logger, sm.validator)
	sm.logger.Info("Assessment service initialized")

	sm.gradingService = NewGradingService(sm.evaluator, sm.logger)
	sm.logger.Info("Grading service initialized")

	sm.attemptService = NewAttemptService(sm.repo, sm.db, sm.logger, sm.validator, sm.gradingService, sm.publisher)
	sm.logger.Info("Attempt service initialized")

	sm.submissionService = NewSubmissionService(sm.repo, sm.db, sm.logger, sm.validator, sm.publisher, sm.config.Location)
	sm.logger.Info("Submission service initialized")

	sm.sweeperService = NewSweeperService(sm.repo, sm.db, sm.logger, sm.publisher, sm.config.Location)
	sm.logger.Info("Sweeper service initialized")

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters
func (sm *serviceManager) Assessment() AssessmentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.assessmentService == nil {
		panic("assessment service not initialized")
	}

	return sm.assessmentService
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.attemptService == nil {
		panic("attempt service not initialized")
	}

	return sm.attemptService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.gradingService == nil {
		panic("grading service not initialized")
	}

	return sm.gradingService
}

func (sm *serviceManager) Submission() SubmissionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.submissionService == nil {
		panic("submission service not initialized")
	}

	return sm.submissionService
}

func (sm *serviceManager) Sweeper() SweeperService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.sweeperService == nil {
		panic("sweeper service not initialized")
	}

	return sm.sweeperService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	return sm.repo.Ping(ctx)
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")

	return nil
}
