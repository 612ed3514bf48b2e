package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrForbidden is returned when the caller is not allowed to act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned for unknown test or attempt ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidDefinition indicates malformed test or question authoring input.
	ErrInvalidDefinition = errors.New("invalid test definition")
	// ErrTestLocked is returned when editing a test that already has attempts.
	ErrTestLocked = errors.New("test is locked by existing attempts")
	// ErrTestNotOpen is returned when starting outside the scheduling window.
	ErrTestNotOpen = errors.New("test is not open")
	// ErrAlreadyAttempted is returned when the candidate already holds an attempt for the test.
	ErrAlreadyAttempted = errors.New("candidate already attempted this test")
	// ErrAttemptNotInProgress is returned when answering a completed attempt.
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	// ErrAttemptExpired is returned when the attempt duration has elapsed.
	ErrAttemptExpired = errors.New("attempt duration exceeded")
	// ErrInvalidReference indicates an answer outside the test's question/option graph.
	ErrInvalidReference = errors.New("answer references unknown question or option")
	// ErrConcurrentModification is returned to the loser of a race on a mutable row.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Stable error codes surfaced to callers.
const (
	CodeForbidden              = "forbidden"
	CodeNotFound               = "not_found"
	CodeInvalidDefinition      = "invalid_definition"
	CodeTestLocked             = "test_locked"
	CodeTestNotOpen            = "test_not_open"
	CodeAlreadyAttempted       = "already_attempted"
	CodeAttemptNotInProgress   = "attempt_not_in_progress"
	CodeAttemptExpired         = "attempt_expired"
	CodeInvalidReference       = "invalid_reference"
	CodeConcurrentModification = "concurrent_modification"
	CodeInternal               = "internal_error"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrForbidden, CodeForbidden},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidDefinition, CodeInvalidDefinition},
	{ErrTestLocked, CodeTestLocked},
	{ErrTestNotOpen, CodeTestNotOpen},
	{ErrAlreadyAttempted, CodeAlreadyAttempted},
	{ErrAttemptNotInProgress, CodeAttemptNotInProgress},
	{ErrAttemptExpired, CodeAttemptExpired},
	{ErrInvalidReference, CodeInvalidReference},
	{ErrConcurrentModification, CodeConcurrentModification},
}

// Code maps an error (possibly wrapped) to its stable code. Errors outside the
// taxonomy map to CodeInternal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsExpected reports whether err belongs to the recoverable taxonomy.
func IsExpected(err error) bool {
	return err != nil && Code(err) != CodeInternal
}

// InvalidDefinitionError carries the individual problems found while validating
// authoring input. It unwraps to ErrInvalidDefinition.
type InvalidDefinitionError struct {
	Problems []string
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidDefinition, strings.Join(e.Problems, "; "))
}

func (e *InvalidDefinitionError) Unwrap() error {
	return ErrInvalidDefinition
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &InvalidDefinitionError{Problems: problems}
}
