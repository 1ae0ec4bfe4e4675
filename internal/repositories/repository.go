package repositories

import "context"

// Repository aggregates all domain repositories behind one interface.
type Repository interface {
	// Assessment domain
	Assessment() AssessmentRepository
	Question() QuestionRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// Assignment domain
	Assignment() AssignmentRepository
	Submission() SubmissionRepository
	Enrollment() EnrollmentRepository

	// User domain (read-only for this service)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
