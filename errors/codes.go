package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Lookup errors
const (
	// ErrCodeNotFound indicates the requested row, topic, factor or pipeline was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeTooManyMatches indicates a lookup that must be unique matched more than one row.
	ErrCodeTooManyMatches ErrorCode = "TOO_MANY_MATCHES"
)

// Write errors
const (
	// ErrCodeVersionConflict indicates an optimistic-lock update or delete affected zero rows.
	ErrCodeVersionConflict ErrorCode = "VERSION_CONFLICT"
	// ErrCodeInsertNotAllowed indicates a merge found nothing and insertion is not permitted.
	ErrCodeInsertNotAllowed ErrorCode = "INSERT_NOT_ALLOWED"
	// ErrCodeNestedTransaction indicates a transaction was requested inside an open one.
	ErrCodeNestedTransaction ErrorCode = "NESTED_TRANSACTION"
)

// Definition errors
const (
	// ErrCodeInvalidDefinition indicates a pipeline, topic or action definition is malformed.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
	// ErrCodeUnsupportedAction indicates the action type has no compiled implementation.
	ErrCodeUnsupportedAction ErrorCode = "UNSUPPORTED_ACTION"
	// ErrCodeInvalidLoopSource indicates a loop variable that is neither absent nor a list.
	ErrCodeInvalidLoopSource ErrorCode = "INVALID_LOOP_SOURCE"
)

// Evaluation errors
const (
	// ErrCodeEvaluation indicates a condition, parameter or mapping could not be evaluated.
	ErrCodeEvaluation ErrorCode = "EVALUATION_FAILED"
	// ErrCodeInvalidInput indicates a value could not be cast to the required type.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Infrastructure errors (retryable)
const (
	// ErrCodeStorage indicates the topic storage failed.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"
	// ErrCodeExternalWriter indicates an external writer failed to dispatch.
	ErrCodeExternalWriter ErrorCode = "EXTERNAL_WRITER_ERROR"
	// ErrCodeEncryption indicates a factor value could not be encrypted or decrypted.
	ErrCodeEncryption ErrorCode = "ENCRYPTION_ERROR"
	// ErrCodeInternal indicates an unexpected failure, including recovered panics.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeVersionConflict: true,
	ErrCodeStorage:         true,
	ErrCodeExternalWriter:  true,
	ErrCodeInternal:        false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
