package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/watchmen-go/kernel/errors"
)

// IsConnectionError checks if a database error is a connection error
// that might be resolved by retrying.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"driver: bad connection",
		"database is locked",
	} {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a GORM record-not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// FromDatabase converts a database error to an AppError for the named operation.
func FromDatabase(err error, operation string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if IsNotFoundError(err) {
		return apperrors.NotFound(operation, "").WithCause(err)
	}
	e := apperrors.Storage(operation, err)
	e.Retryable = IsConnectionError(err)
	return e
}
