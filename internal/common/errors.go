// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/onion-topology/internal/model"
)

// Common application errors.
var (
	// Pipeline errors.
	ErrSchema                 = errors.New("schema error")
	ErrEmptyData              = errors.New("no usable rows after normalization")
	ErrClassificationMismatch = errors.New("classification references unknown door")
	ErrGraphUnreachable       = errors.New("door unreachable from any entrance")
	ErrSessionBusy            = errors.New("another session is still processing")

	// Storage errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// SchemaError reports required semantic roles that the column mapping does not cover.
type SchemaError struct {
	Missing []model.Role
	Unknown []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		roles := make([]string, len(e.Missing))
		for i, r := range e.Missing {
			roles[i] = string(r)
		}
		parts = append(parts, "unmapped roles: "+strings.Join(roles, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "mapped columns not in file: "+strings.Join(e.Unknown, ", "))
	}
	return fmt.Sprintf("%v: %s", ErrSchema, strings.Join(parts, "; "))
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// EmptyDataError is returned when normalization leaves nothing to analyze.
type EmptyDataError struct {
	OriginalRows int
}

func (e *EmptyDataError) Error() string {
	return fmt.Sprintf("%v (%d rows uploaded)", ErrEmptyData, e.OriginalRows)
}

func (e *EmptyDataError) Unwrap() error {
	return ErrEmptyData
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsFatal reports whether err must abort a pipeline run. Empty data is reported as
// an explicit empty result instead.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrEmptyData)
}
