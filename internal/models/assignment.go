package models

import (
	"time"

	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	SubmissionAssigned SubmissionStatus = "assigned"
	SubmissionDraft    SubmissionStatus = "draft"
	SubmissionTurnedIn SubmissionStatus = "turned_in"
	SubmissionLate     SubmissionStatus = "late"
	SubmissionMissing  SubmissionStatus = "missing"
	SubmissionGraded   SubmissionStatus = "graded"
)

// StatusLabel is the display form of a submission's state.
type StatusLabel string

const (
	LabelGraded        StatusLabel = "Graded"
	LabelDraft         StatusLabel = "Draft"
	LabelSubmittedLate StatusLabel = "Submitted Late"
	LabelSubmitted     StatusLabel = "Submitted"
	LabelMissing       StatusLabel = "Missing"
	LabelNotSubmitted  StatusLabel = "Not Submitted"
)

type Assignment struct {
	ID      uint    `json:"id" gorm:"primaryKey"`
	ClassID uint    `json:"class_id" gorm:"not null;index"`
	Title   string  `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Points  int     `json:"points" gorm:"default:100" validate:"min=0,max=1000"`
	DueDate *string `json:"due_date" gorm:"size:10"` // "2006-01-02", nil means no deadline
	DueTime *string `json:"due_time" gorm:"size:5"`  // "15:04", nil means end of day

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Submissions []AssignmentSubmission `json:"submissions" gorm:"foreignKey:AssignmentID"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// HasDeadline reports whether the assignment can ever become missing.
func (a *Assignment) HasDeadline() bool {
	return a.DueDate != nil && *a.DueDate != ""
}

type AssignmentSubmission struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	AssignmentID uint             `json:"assignment_id" gorm:"not null;index;uniqueIndex:idx_assignment_student"`
	StudentID    string           `json:"student_id" gorm:"not null;index;size:255;uniqueIndex:idx_assignment_student"`
	Status       SubmissionStatus `json:"status" gorm:"default:assigned;index"`

	SubmittedAt *time.Time `json:"submitted_at"`
	Score       *int       `json:"score"`

	// Once a grade has been handed back the row is owned by the teacher
	// and the sweep must not touch it.
	ReturnedToStudent bool `json:"returned_to_student" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assignment Assignment `json:"-" gorm:"foreignKey:AssignmentID"`
}

func (AssignmentSubmission) TableName() string {
	return "assignment_submissions"
}

// IsSticky reports whether the row is frozen against sweep writes.
func (s *AssignmentSubmission) IsSticky() bool {
	return s.Status == SubmissionGraded && s.ReturnedToStudent
}

// HasSubmitted reports whether the student has turned anything in.
func (s *AssignmentSubmission) HasSubmitted() bool {
	return s.SubmittedAt != nil
}

type ClassEnrollment struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ClassID   uint   `json:"class_id" gorm:"not null;index;uniqueIndex:idx_class_student"`
	StudentID string `json:"student_id" gorm:"not null;index;size:255;uniqueIndex:idx_class_student"`
	Active    bool   `json:"active" gorm:"not null;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ClassEnrollment) TableName() string {
	return "class_enrollments"
}
