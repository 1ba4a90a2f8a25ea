package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified kernel error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`

	stack []uintptr
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return traced(&AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	})
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Sentinels usable with errors.Is, matching on code only.
var (
	ErrNotFound        = &AppError{Code: ErrCodeNotFound}
	ErrTooManyMatches  = &AppError{Code: ErrCodeTooManyMatches}
	ErrVersionConflict = &AppError{Code: ErrCodeVersionConflict}
)

// CodeOf returns the code of the first AppError in err's chain, or
// ErrCodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// --- Common Error Constructors ---

// NotFound creates an error for a missing row or definition.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	msg := fmt.Sprintf("%s not found", resource)
	if id != "" {
		msg = fmt.Sprintf("%s[%s] not found", resource, id)
	}
	return traced(&AppError{Code: ErrCodeNotFound, Message: msg, Details: details})
}

// TooManyMatches creates an error for a lookup that must be unique.
func TooManyMatches(resource string, count int) *AppError {
	return traced(&AppError{
		Code:    ErrCodeTooManyMatches,
		Message: fmt.Sprintf("too many %s rows found, expected exactly one, got %d", resource, count),
		Details: map[string]any{"resource": resource, "count": count},
	})
}

// VersionConflict creates an error for an optimistic-lock miss.
func VersionConflict(topic, id string, version int64) *AppError {
	return traced(&AppError{
		Code:      ErrCodeVersionConflict,
		Message:   fmt.Sprintf("row[%s] of topic[%s] at version[%d] was changed or removed by another writer", id, topic, version),
		Retryable: true,
		Details:   map[string]any{"topic": topic, "id": id, "version": version},
	})
}

// InsertNotAllowed creates an error for a merge that found no row to update.
func InsertNotAllowed(topic string) *AppError {
	return traced(&AppError{
		Code:    ErrCodeInsertNotAllowed,
		Message: fmt.Sprintf("no row of topic[%s] matched and insertion is not allowed", topic),
		Details: map[string]any{"topic": topic},
	})
}

// InvalidDefinition creates an error for a malformed definition.
func InvalidDefinition(reason string) *AppError {
	return traced(&AppError{Code: ErrCodeInvalidDefinition, Message: reason})
}

// UnsupportedAction creates an error for an unknown action type.
func UnsupportedAction(actionType string) *AppError {
	return traced(&AppError{
		Code:    ErrCodeUnsupportedAction,
		Message: fmt.Sprintf("action type[%s] is not supported", actionType),
		Details: map[string]any{"type": actionType},
	})
}

// InvalidLoopSource creates an error for a loop variable holding a non-list value.
func InvalidLoopSource(name string, value any) *AppError {
	return traced(&AppError{
		Code:    ErrCodeInvalidLoopSource,
		Message: fmt.Sprintf("value of loop variable[%s] must be a list, got %T", name, value),
		Details: map[string]any{"variable": name},
	})
}

// Evaluation creates an error for a condition or parameter evaluation failure.
func Evaluation(reason string, cause error) *AppError {
	return traced(&AppError{Code: ErrCodeEvaluation, Message: reason, Cause: cause})
}

// InvalidInput creates an error for a value that cannot be cast.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return traced(&AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	})
}

// Storage creates a retryable error for a storage failure.
func Storage(operation string, cause error) *AppError {
	return traced(&AppError{
		Code: ErrCodeStorage, Message: fmt.Sprintf("topic storage %s failed", operation),
		Retryable: true, Cause: cause,
		Details: map[string]any{"operation": operation},
	})
}

// ExternalWriter creates an error for an external writer failure.
func ExternalWriter(writer string, cause error) *AppError {
	return traced(&AppError{
		Code: ErrCodeExternalWriter, Message: fmt.Sprintf("external writer[%s] failed", writer),
		Retryable: true, Cause: cause,
		Details: map[string]any{"writer": writer},
	})
}

// Encryption creates an error for a factor encryption failure.
func Encryption(factor string, cause error) *AppError {
	return traced(&AppError{
		Code: ErrCodeEncryption, Message: fmt.Sprintf("cannot encrypt or decrypt factor[%s]", factor),
		Cause: cause, Details: map[string]any{"factor": factor},
	})
}

// Internal creates an error for an unexpected failure.
func Internal(cause error) *AppError {
	return traced(&AppError{Code: ErrCodeInternal, Message: "unexpected kernel failure", Cause: cause})
}
