package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/classforge/assessment-engine/internal/models"
)

// Validator wraps struct-tag validation with the engine's business rules.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the engine's custom rules registered.
func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerRules()

	return v
}

func (v *Validator) registerRules() {
	_ = v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.MultipleChoice, models.ShortAnswer:
			return true
		}
		return false
	})

	_ = v.validate.RegisterValidation("points_range", func(fl validator.FieldLevel) bool {
		points := fl.Field().Int()
		return points >= 1 && points <= 100
	})
}

// Validate runs struct-tag validation and returns nil when the value passes.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

// ValidateAssignment checks structural sanity of a loaded assignment row
// before a session is built on top of it.
func (v *Validator) ValidateAssignment(a *models.ClassAssignment) error {
	var errs ValidationErrors
	if !a.DueAt.After(a.StartAt) {
		errs = append(errs, FieldError{Field: "due_at", Rule: "window", Message: "due time must be after start time"})
	}
	if a.AttemptLimit < 0 {
		errs = append(errs, FieldError{Field: "attempt_limit", Rule: "min", Message: "attempt limit cannot be negative"})
	}
	if a.PassingScore < 0 || a.PassingScore > 100 {
		errs = append(errs, FieldError{Field: "passing_score", Rule: "range", Message: "passing score must be between 0 and 100"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateQuestions checks each catalog question row before it is handed to
// a session. A malformed row fails the whole set.
func (v *Validator) ValidateQuestions(questions []models.Question) error {
	for i := range questions {
		if err := v.validate.Struct(&questions[i]); err != nil {
			errs := toValidationErrors(err)
			for j := range errs {
				errs[j].Field = fmt.Sprintf("questions[%d].%s", i, errs[j].Field)
			}
			return errs
		}
	}
	return nil
}

// FieldError describes one failed rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationErrors is a non-empty list of field errors.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func toValidationErrors(err error) ValidationErrors {
	var errs ValidationErrors
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			errs = append(errs, FieldError{
				Field:   strings.ToLower(fe.Field()),
				Rule:    fe.Tag(),
				Message: fmt.Sprintf("failed rule %q", fe.Tag()),
			})
		}
		return errs
	}
	return ValidationErrors{{Field: "_", Rule: "struct", Message: err.Error()}}
}
