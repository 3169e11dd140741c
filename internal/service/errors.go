package service

import (
	"errors"
)

// Kind classifies the errors the auth service exposes to callers.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindDuplicateAccount   Kind = "duplicate_account"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindTokenExpired       Kind = "token_expired"
	KindTokenInvalid       Kind = "token_invalid"
	KindInternal           Kind = "internal_error"
)

// Error is the only error type the auth service returns. Message and Fields
// are safe to show to clients; the cause is kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "credentials are not valid"}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "not authenticated"}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired, Message: "session token expired"}
	ErrTokenInvalid       = &Error{Kind: KindTokenInvalid, Message: "session token invalid"}
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal server error"}
)

func validationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "request validation failed", Fields: fields}
}

func duplicateAccount(field, message string) *Error {
	return &Error{
		Kind:    KindDuplicateAccount,
		Message: message,
		Fields:  map[string]string{field: "already registered"},
	}
}

func internalError(cause error) *Error {
	return &Error{Kind: KindInternal, Message: ErrInternal.Message, cause: cause}
}

// KindOf returns the kind of err. Errors that did not come from the service
// are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
