package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

type Question struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	AssessmentID uint         `json:"assessment_id" gorm:"not null;index"`
	Type         QuestionType `json:"type" gorm:"not null;index"`
	Text         string       `json:"text" gorm:"type:text;not null" validate:"required"`
	Points       int          `json:"points" gorm:"not null" validate:"required,min=1,max=100"`
	Order        int          `json:"order" gorm:"default:0"`

	// Ordered options for choice questions, stored as a JSON string array.
	Options datatypes.JSON `json:"options" gorm:"type:jsonb"`

	// Canonical answer set for choice questions; single-element reference
	// answer for short_answer and essay.
	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	Explanation *string `json:"explanation" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment Assessment `json:"-" gorm:"foreignKey:AssessmentID"`
}

func (Question) TableName() string {
	return "questions"
}

// IsChoiceType reports whether the question is graded by answer-set
// comparison rather than by the evaluation gateway.
func (q *Question) IsChoiceType() bool {
	return q.Type == MultipleChoice || q.Type == TrueFalse
}

// CorrectAnswers decodes the canonical answer set. A malformed or empty
// column decodes to an empty slice.
func (q *Question) CorrectAnswers() []string {
	if len(q.Answer) == 0 {
		return nil
	}
	var answers []string
	if err := json.Unmarshal(q.Answer, &answers); err != nil {
		var single string
		if err := json.Unmarshal(q.Answer, &single); err != nil {
			return nil
		}
		answers = []string{single}
	}
	return answers
}

// ReferenceAnswer returns the model answer used when prompting the
// evaluation gateway. Empty for choice questions without one.
func (q *Question) ReferenceAnswer() string {
	answers := q.CorrectAnswers()
	if len(answers) == 0 {
		return ""
	}
	return answers[0]
}

// OptionList decodes the ordered option texts.
func (q *Question) OptionList() []string {
	if len(q.Options) == 0 {
		return nil
	}
	var options []string
	if err := json.Unmarshal(q.Options, &options); err != nil {
		return nil
	}
	return options
}
