package models

import (
	"time"

	"gorm.io/gorm"
)

type AssessmentKind string

const (
	KindQuiz        AssessmentKind = "quiz"
	KindExamination AssessmentKind = "examination"
)

type AssessmentStatus string

const (
	StatusDraft    AssessmentStatus = "Draft"
	StatusActive   AssessmentStatus = "Active"
	StatusExpired  AssessmentStatus = "Expired"
	StatusArchived AssessmentStatus = "Archived"
)

// Assessment is the attemptable unit. Quizzes and examinations share the
// same capability set and differ only by kind.
type Assessment struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	Kind        AssessmentKind   `json:"kind" gorm:"not null;index;size:20" validate:"required,oneof=quiz examination"`
	Title       string           `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string          `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Status      AssessmentStatus `json:"status" gorm:"default:Draft;index" validate:"omitempty,oneof=Draft Active Expired Archived"`
	MaxAttempts int              `json:"max_attempts" gorm:"default:1" validate:"min=1,max=10"`
	DueDate     *time.Time       `json:"due_date"`

	ClassID uint `json:"class_id" gorm:"not null;index"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question          `json:"questions" gorm:"foreignKey:AssessmentID"`
	Attempts  []AssessmentAttempt `json:"attempts" gorm:"foreignKey:AssessmentID"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
	TotalPoints    int `json:"total_points" gorm:"-"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// TotalQuestionPoints sums the point values of all attached questions.
func (a *Assessment) TotalQuestionPoints() int {
	total := 0
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}
