package utils

import (
	"encoding/json"
	"reflect"
	"strings"

	apperrors "github.com/adaptix-edu/exam-service/internal/errors"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the exam-service custom rules.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	// Report json tag names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("item_kind", validateItemKind)
	v.RegisterValidation("user_role", validateUserRole)
	v.RegisterValidation("exam_status", validateExamStatus)

	return &Validator{validate: v}
}

// Validate validates struct tags and converts failures into the shared
// ValidationErrors type consumed by handlers.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if ve := apperrors.ToValidationErrors(err); len(ve) > 0 {
			return ve
		}
		return err
	}
	return nil
}

func validateItemKind(fl validator.FieldLevel) bool {
	value := models.ItemKind(fl.Field().String())
	return value == models.ItemMultipleChoice || value == models.ItemFreeText
}

func validateUserRole(fl validator.FieldLevel) bool {
	value := models.UserRole(fl.Field().String())
	return value == models.RoleStudent || value == models.RoleTeacher || value == models.RoleAdmin
}

func validateExamStatus(fl validator.FieldLevel) bool {
	value := models.ExamStatus(fl.Field().String())
	return value == models.ExamDraft || value == models.ExamActive || value == models.ExamArchived
}

// ValidateChoiceOptions checks the multiple-choice option list: at least
// two options, unique keys, and the correct choice present among them.
func ValidateChoiceOptions(raw json.RawMessage, correctChoice *string) apperrors.ValidationErrors {
	var errs apperrors.ValidationErrors

	var opts []models.ChoiceOption
	if err := json.Unmarshal(raw, &opts); err != nil {
		errs = append(errs, *apperrors.NewValidationError("options", "must be a list of {key, text} pairs", nil))
		return errs
	}

	if len(opts) < 2 {
		errs = append(errs, *apperrors.NewValidationError("options", "must contain at least 2 options", len(opts)))
	}

	seen := make(map[string]bool, len(opts))
	for _, opt := range opts {
		key := strings.TrimSpace(opt.Key)
		if key == "" {
			errs = append(errs, *apperrors.NewValidationError("options", "option keys must not be empty", opt.Key))
			continue
		}
		if seen[key] {
			errs = append(errs, *apperrors.NewValidationError("options", "choice keys must be unique", key))
		}
		seen[key] = true
	}

	if correctChoice == nil || strings.TrimSpace(*correctChoice) == "" {
		errs = append(errs, *apperrors.NewValidationError("correct_choice", "is required for multiple_choice items", nil))
	} else if len(seen) > 0 && !seen[strings.TrimSpace(*correctChoice)] {
		errs = append(errs, *apperrors.NewValidationError("correct_choice", "must match one of the option keys", *correctChoice))
	}

	return errs
}
