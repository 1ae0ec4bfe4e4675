package pkg

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/classforge/classroom-service/internal/config"
	"github.com/classforge/classroom-service/internal/models"
)

// InitDatabase opens the PostgreSQL connection and migrates the schema.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.Environment == "development" {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// AutoMigrate creates or updates the tables for every model the service owns.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Assessment{},
		&models.Question{},
		&models.AssessmentAttempt{},
		&models.StudentAnswer{},
		&models.Assignment{},
		&models.AssignmentSubmission{},
		&models.ClassEnrollment{},
	); err != nil {
		return err
	}

	// One open attempt per student and assessment. Gorm tags cannot express
	// a partial index, so it is created directly.
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_attempt
		 ON assessment_attempts (student_id, assessment_id)
		 WHERE status = 'in_progress'`,
	).Error
}
