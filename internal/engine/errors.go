package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// Error is returned by every engine operation that fails.
//
// Error carries a Code for callers that branch on the failure category and
// wraps the underlying cause for errors.Is / errors.As.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the engine operation that failed (e.g. "record_logout").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown user or document.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidInput indicates a malformed identifier or value.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeConflict indicates a unique value (username) is already taken.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeStorageFailure indicates an I/O error reading or appending to the ledger.
	// Nothing from the failed call was committed.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is an engine NOT_FOUND error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidInput returns true if err is an engine INVALID_INPUT error.
func IsInvalidInput(err error) bool {
	return hasCode(err, ErrCodeInvalidInput)
}

// IsConflict returns true if err is an engine CONFLICT error.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsStorageFailure returns true if err is an engine STORAGE_FAILURE error.
func IsStorageFailure(err error) bool {
	return hasCode(err, ErrCodeStorageFailure)
}

// CodeOf returns the code of an engine error, or "" if err is not one.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func invalidInput(op, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

func notFound(op, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// classify maps a store error onto the engine taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	code := ErrCodeStorageFailure
	var verr model.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = ErrCodeNotFound
	case errors.Is(err, store.ErrConflict):
		code = ErrCodeConflict
	case errors.As(err, &verr):
		code = ErrCodeInvalidInput
	}
	return &Error{Code: code, Op: op, Err: err}
}
