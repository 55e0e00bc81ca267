package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrScheduleConflict       = errors.New("schedule conflict")
	ErrBusy                   = errors.New("resource busy, retry later")
)

// ValidationError carries per-field messages. It matches ErrValidation.
type ValidationError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func FieldError(field, message string) *ValidationError {
	return &ValidationError{
		Message: field + ": " + message,
		Fields:  map[string]string{field: message},
	}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ScheduleConflictError lists the held reservations a requested interval
// overlaps. It matches ErrScheduleConflict.
type ScheduleConflictError struct {
	Conflicts []ReservedInterval `json:"conflicts"`
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("schedule conflict with %d reservation(s)", len(e.Conflicts))
}

func (e *ScheduleConflictError) Is(target error) bool { return target == ErrScheduleConflict }

// TransitionError names the rejected transition. It matches
// ErrInvalidStateTransition.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidStateTransition }
