package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ValidationError reports caller-supplied data that is insufficient for an
// operation. It is never retried and surfaces immediately.
type ValidationError struct {
	Message string
	// Fields names the missing/invalid fields, or for batch operations the
	// offending entries as "index: field".
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) ErrorCode() string { return "VALIDATION_ERROR" }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// StoreError is an error surfaced by the underlying row store.
type StoreError struct {
	Status  int    // HTTP status, 0 when not applicable
	Code    string // store-specific code, e.g. PostgREST "PGRST116"
	Message string
}

func (e *StoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("store error %s: %s", e.Code, e.Message)
}

func (e *StoreError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return strconv.Itoa(e.Status)
}

// ErrTaskNotFound is returned by operations that require an existing task.
var ErrTaskNotFound = errors.New("task not found")

// ErrMemberNotFound is returned by operations that require an existing member.
var ErrMemberNotFound = errors.New("member not found")

// ErrReminderNotFound is returned when a reminder id does not resolve.
var ErrReminderNotFound = errors.New("reminder not found")
