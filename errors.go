package bridge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/broady/bridge/wire"
)

// ErrorCode is the type tag of an error response.
type ErrorCode string

// The error codes reported in the type field of an error response. Services
// may use any other string as well.
const (
	CodeInvalidArgument   ErrorCode = "invalid_argument"
	CodeUnauthenticated   ErrorCode = "unauthenticated"
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeNotFound          ErrorCode = "not_found"
	CodeAlreadyExists     ErrorCode = "already_exists"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
	CodeCanceled          ErrorCode = "canceled" // fixed tag for cancelled calls
	CodeInternal          ErrorCode = "internal"
	CodeNotImplemented    ErrorCode = "not_implemented"
	CodeUnavailable       ErrorCode = "unavailable"
	CodeDeadlineExceeded  ErrorCode = "deadline_exceeded"
)

// Error is an error with a code. Returning one from a service method sets the
// type of the error response. Details stay on the host; only Code and Message
// cross the wire.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError returns an error reported to the caller with the given type.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf is NewError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithDetail returns a copy of e with key set in its details.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// WithDetails returns a copy of e with details merged into its own. It
// returns e itself when details is empty.
func (e *Error) WithDetails(details map[string]any) *Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &Error{Code: e.Code, Message: e.Message, Details: merged}
}

// ErrorTyper is implemented by errors that report their own error type.
type ErrorTyper interface {
	ErrorType() string
}

// InvocationError wraps a fault raised while invoking a method: a recovered
// panic or a failed asynchronous result. Error responses report its cause.
type InvocationError struct {
	Method string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Method, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// rootCause strips InvocationError layers and single-element joins.
func rootCause(err error) error {
	for {
		var inv *InvocationError
		if errors.As(err, &inv) && inv.Err != nil {
			err = inv.Err
			continue
		}
		if u, ok := err.(interface{ Unwrap() []error }); ok {
			if errs := u.Unwrap(); len(errs) == 1 {
				err = errs[0]
				continue
			}
		}
		return err
	}
}

// ErrorTransformer maps an error returned by a method to the error reported
// to the caller. Returning nil falls back to DefaultErrorTransformer.
type ErrorTransformer func(error) *Error

// DefaultErrorTransformer reports *Error values as they are and classifies
// context errors, ErrorTyper implementations, validation failures and joined
// errors. Anything else is internal.
func DefaultErrorTransformer(err error) *Error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeDeadlineExceeded, "request timeout")
	case errors.Is(err, context.Canceled):
		return NewError(CodeCanceled, "context canceled")
	}

	var typed ErrorTyper
	if errors.As(err, &typed) {
		return NewError(ErrorCode(typed.ErrorType()), err.Error())
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		return validationError(valErrs)
	}

	if u, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := u.Unwrap(); len(errs) > 0 {
			// The first error decides the code; all messages are kept.
			first := DefaultErrorTransformer(errs[0])
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return &Error{Code: first.Code, Message: strings.Join(msgs, "; "), Details: first.Details}
		}
	}

	return NewError(CodeInternal, err.Error())
}

// validationError reports every failed field in the message and keys the
// per-field messages by field name in Details.
func validationError(valErrs validator.ValidationErrors) *Error {
	details := make(map[string]any, len(valErrs))
	parts := make([]string, 0, len(valErrs))
	for _, fe := range valErrs {
		msg := describeFieldError(fe)
		details[fe.Field()] = msg
		parts = append(parts, fe.Field()+": "+msg)
	}
	return &Error{Code: CodeInvalidArgument, Message: strings.Join(parts, "; "), Details: details}
}

// fieldErrorFormats holds the message for common validator tags; %[1]s is the
// tag parameter.
var fieldErrorFormats = map[string]string{
	"required": "required",
	"email":    "must be a valid email address",
	"url":      "must be a valid URL",
	"uuid":     "must be a valid UUID",
	"min":      "must be at least %[1]s long",
	"max":      "must be at most %[1]s long",
	"len":      "must be exactly %[1]s long",
	"eq":       "must equal %[1]s",
	"ne":       "must not equal %[1]s",
	"gt":       "must be greater than %[1]s",
	"gte":      "must be at least %[1]s",
	"lt":       "must be less than %[1]s",
	"lte":      "must be at most %[1]s",
	"oneof":    "must be one of: %[1]s",
}

func describeFieldError(fe validator.FieldError) string {
	if format, ok := fieldErrorFormats[fe.Tag()]; ok {
		if !strings.Contains(format, "%") {
			return format
		}
		return fmt.Sprintf(format, fe.Param())
	}
	if fe.Param() != "" {
		return "failed " + fe.Tag() + "=" + fe.Param() + " validation"
	}
	return "failed " + fe.Tag() + " validation"
}

// toWire converts a mapped error to its wire form.
func (e *Error) toWire() *wire.Error {
	return &wire.Error{Message: e.Message, Type: string(e.Code)}
}
