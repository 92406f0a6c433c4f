package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Error kinds. Every *Error matches exactly one of these with errors.Is.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrBackend          = errors.New("backend error")

	// ErrForbidden is the invalid operation of acting on someone else's data.
	ErrForbidden = fmt.Errorf("%w: forbidden", ErrInvalidOperation)
)

// Error is the error returned by every service operation.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unauthenticated() error {
	return &Error{Kind: ErrUnauthenticated, Code: "UNAUTHENTICATED", Message: "Sign in required"}
}

func invalidOperation(msg string) error {
	return &Error{Kind: ErrInvalidOperation, Code: "INVALID_OPERATION", Message: msg}
}

func forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Code: "INVALID_OPERATION", Message: msg}
}

func validation(msg string) error {
	return &Error{Kind: ErrValidation, Code: "VALIDATION_ERROR", Message: msg}
}

// notFound builds the error for a missing entity, e.g. notFound("book")
// has code BOOK_NOT_FOUND.
func notFound(entity string) error {
	return &Error{
		Kind:    ErrNotFound,
		Code:    strings.ToUpper(strings.ReplaceAll(entity, " ", "_")) + "_NOT_FOUND",
		Message: strings.ToUpper(entity[:1]) + entity[1:] + " not found",
	}
}

// backend wraps a storage failure, keeping the raw message.
func backend(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return &Error{Kind: ErrBackend, Code: "DATABASE_ERROR", Message: err.Error(), Err: err}
}

// lookupError maps gorm's missing-row error to notFound(entity).
func lookupError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity)
	}
	return backend(err)
}

// isUniqueViolation works across the postgres and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
