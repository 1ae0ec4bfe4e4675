package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/classforge/classroom-service/internal/models"
)

// Validator wraps struct validation with the service's custom rules.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with all custom rules registered.
func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerRules()

	return v
}

// Validate validates a struct and returns the accumulated field errors.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed on rule %s", fe.Field(), fe.Tag()))
	}

	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}

// ValidateAttemptStart checks the business conditions for opening a new
// attempt. It reports the first violated rule.
func (v *Validator) ValidateAttemptStart(status models.AssessmentStatus, dueDate *time.Time, attemptCount, maxAttempts int) error {
	if status != models.StatusActive {
		return fmt.Errorf("assessment is not active")
	}

	if dueDate != nil && time.Now().After(*dueDate) {
		return fmt.Errorf("assessment has expired")
	}

	if attemptCount >= maxAttempts {
		return fmt.Errorf("maximum attempts exceeded")
	}

	return nil
}

func (v *Validator) registerRules() {
	// Max attempts (1-10)
	v.validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 1 && attempts <= 10
	})

	// Question points (1-100)
	v.validate.RegisterValidation("points_range", func(fl validator.FieldLevel) bool {
		points := fl.Field().Int()
		return points >= 1 && points <= 100
	})

	// Due date must be in the future, nil means no deadline
	v.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true
		}

		var dueDate time.Time
		if field.Kind() == reflect.Ptr {
			dueDate = field.Elem().Interface().(time.Time)
		} else {
			dueDate = field.Interface().(time.Time)
		}

		return dueDate.After(time.Now())
	})

	// Question type must be one of the supported kinds
	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		qType := models.QuestionType(fl.Field().String())
		switch qType {
		case models.MultipleChoice, models.TrueFalse, models.ShortAnswer, models.Essay:
			return true
		}
		return false
	})

	// Calendar date in YYYY-MM-DD form. Nil pointers reach the rule as an
	// empty string, which means no deadline and passes.
	v.validate.RegisterValidation("due_date_format", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}

		_, err := time.Parse("2006-01-02", value)
		return err == nil
	})

	// Clock time in HH:MM form, empty means end of day
	v.validate.RegisterValidation("due_time_format", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}

		_, err := time.Parse("15:04", value)
		return err == nil
	})
}
