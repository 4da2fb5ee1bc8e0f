package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the handler boundary must react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindStorageTransient
	KindStorageFatal
	KindTransport
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindStorageTransient:
		return "storage_transient"
	case KindStorageFatal:
		return "storage_fatal"
	case KindTransport:
		return "transport"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound        = fmt.Errorf("record not found")
	ErrBadRequest      = fmt.Errorf("bad request")
	ErrForbidden       = fmt.Errorf("access denied")
	ErrWorkbookCorrupt = fmt.Errorf("workbook is corrupted")
	ErrStoreBusy       = fmt.Errorf("workbook is busy")
)

// AppError carries a Kind plus a message safe to show to the originating actor.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func newKind(kind Kind, err error, format string, args ...interface{}) error {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NewValidationError(format string, args ...interface{}) error {
	return newKind(KindValidation, nil, format, args...)
}

func NewAuthorizationError(format string, args ...interface{}) error {
	return newKind(KindAuthorization, ErrForbidden, format, args...)
}

func NewStateError(format string, args ...interface{}) error {
	return newKind(KindState, nil, format, args...)
}

func NewInvariantError(format string, args ...interface{}) error {
	return newKind(KindInvariant, nil, format, args...)
}

func NewNotFoundError(format string, args ...interface{}) error {
	return newKind(KindValidation, ErrNotFound, format, args...)
}

func NewStorageTransientError(err error, format string, args ...interface{}) error {
	return newKind(KindStorageTransient, err, format, args...)
}

func NewStorageFatalError(err error, format string, args ...interface{}) error {
	return newKind(KindStorageFatal, err, format, args...)
}

func NewTransportError(err error, format string, args ...interface{}) error {
	return newKind(KindTransport, err, format, args...)
}

// KindOf returns the Kind of the first AppError in the chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Recoverable kinds are absorbed at the handler boundary with a user message.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindAuthorization, KindState, KindTransport:
		return true
	default:
		return false
	}
}

// UserMessage returns the actor-facing part of an AppError, or a generic text.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal error, please try again later"
}

// InvalidInputError is kept for field-level validator failures.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func NewInvalidInputError(format string, args ...interface{}) error {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...), Err: &InvalidInputError{Message: fmt.Sprintf(format, args...)}}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
