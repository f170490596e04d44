package services

import (
	"errors"
	"fmt"

	apperrors "github.com/adaptix-edu/exam-service/internal/errors"
	"github.com/adaptix-edu/exam-service/internal/grading"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")

	// Exam / item bank errors
	ErrExamNotFound    = errors.New("exam not found")
	ErrExamNotActive   = errors.New("exam is not active")
	ErrExamNotEditable = errors.New("exam cannot be modified - has existing submissions")
	ErrExamHasNoItems  = errors.New("exam has no items")
	ErrItemNotFound    = errors.New("item not found")

	// Session state errors - caller mistakes or stale client state,
	// surfaced to the UI directly and never retried automatically.
	ErrAttemptAlreadyInProgress = errors.New("an attempt is already in progress for this exam")
	ErrInvalidSessionState      = errors.New("submission is not in progress")
	ErrItemAlreadyAnswered      = errors.New("item already has an answer for this submission")
	ErrItemNotServed            = errors.New("item was never served to this submission")
	ErrSubmissionNotFound       = errors.New("submission not found")
	ErrSubmissionFinalized      = errors.New("submission is finalized")
	ErrSessionNotExpired        = errors.New("submission has not exceeded its time limit")

	// Validation errors - rejected before any persistence.
	ErrScoreOutOfRange = errors.New("override score is out of range for the item")
	ErrEmptyAnswer     = grading.ErrEmptyAnswer

	// Dependency errors - transient; no partial write occurred, the
	// identical call may be retried safely.
	ErrGradingUnavailable = grading.ErrUnavailable

	// Integrity errors - programmer errors, never expected in normal
	// operation. Raised loudly rather than silently corrected.
	ErrItemNotInExam = errors.New("item does not belong to the submission's exam")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrSubmissionNotFound)
}

// IsStateConflict checks if error represents a session/review state conflict
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrAttemptAlreadyInProgress) ||
		errors.Is(err, ErrInvalidSessionState) ||
		errors.Is(err, ErrItemAlreadyAnswered) ||
		errors.Is(err, ErrItemNotServed) ||
		errors.Is(err, ErrSubmissionFinalized) ||
		errors.Is(err, ErrSessionNotExpired) ||
		errors.Is(err, ErrExamNotEditable)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrScoreOutOfRange) ||
		errors.Is(err, ErrEmptyAnswer) {
		return true
	}
	var ve ValidationErrors
	return errors.As(err, &ve)
}

// IsDependencyFailure checks if error is a transient collaborator failure
func IsDependencyFailure(err error) bool {
	return errors.Is(err, ErrGradingUnavailable)
}
