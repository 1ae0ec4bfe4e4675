package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

type AssessmentAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	AssessmentID  uint          `json:"assessment_id" gorm:"not null;index;uniqueIndex:idx_student_assessment_attempt"`
	StudentID     string        `json:"student_id" gorm:"not null;index;size:255;uniqueIndex:idx_student_assessment_attempt"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_student_assessment_attempt"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeSpent   *int       `json:"time_spent"` // seconds, never negative

	// Scoring, populated on submission
	Score       *int    `json:"score"`
	TotalPoints int     `json:"total_points"`
	Percentage  float64 `json:"percentage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment Assessment      `json:"assessment" gorm:"foreignKey:AssessmentID"`
	Answers    []StudentAnswer `json:"answers" gorm:"foreignKey:AttemptID"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}

// IsActive reports whether the attempt still accepts answers.
func (a *AssessmentAttempt) IsActive() bool {
	return a.Status == AttemptInProgress
}

type StudentAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`

	// Response payload stored as a JSON string array. Choice answers carry
	// the selected option values, free-text answers a single element.
	Response datatypes.JSON `json:"response" gorm:"type:jsonb"`

	// Grading
	IsCorrect    *bool      `json:"is_correct"`
	PointsEarned int        `json:"points_earned"`
	Feedback     *string    `json:"feedback" gorm:"type:text"`
	GradedAt     *time.Time `json:"graded_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt  AssessmentAttempt `json:"-" gorm:"foreignKey:AttemptID"`
	Question Question          `json:"question" gorm:"foreignKey:QuestionID"`
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

// ResponseValues decodes the response payload. Single bare strings are
// accepted for backward compatibility with older clients.
func (sa *StudentAnswer) ResponseValues() []string {
	if len(sa.Response) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(sa.Response, &values); err != nil {
		var single string
		if err := json.Unmarshal(sa.Response, &single); err != nil {
			return nil
		}
		values = []string{single}
	}
	return values
}

// ResponseText joins the response values into the free-text form sent to
// the evaluation gateway.
func (sa *StudentAnswer) ResponseText() string {
	values := sa.ResponseValues()
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
