package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by service operations. Callers map these to
// transport-level responses with errors.Is.
var (
	// Attempt errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptLimitExceeded    = errors.New("attempt limit exceeded")
	ErrAttemptAccessDenied     = errors.New("access to attempt denied")

	// Assessment errors
	ErrAssessmentNotFound     = errors.New("assessment not found")
	ErrAssessmentNotPublished = errors.New("assessment is not published")

	// Question errors
	ErrQuestionNotFound = errors.New("question not found")

	// Assignment errors
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionReturned = errors.New("submission has been returned to student")

	// Generic errors
	ErrValidationFailed = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
)

// ValidationError carries field-level detail for a failed business rule.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

func NewValidationError(field, message string, value interface{}) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// PermissionError describes a denied operation on a resource.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) error {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}
