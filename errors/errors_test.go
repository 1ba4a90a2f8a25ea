package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeVersionConflict, "stale")
	if !err.Retryable {
		t.Error("VERSION_CONFLICT should be retryable")
	}
	if New(ErrCodeNotFound, "gone").Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_NotFound(t *testing.T) {
	err := NotFound("topic", "t-1")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", err.Code)
	}
	if err.Details["id"] != "t-1" {
		t.Errorf("expected id=t-1, got %v", err.Details["id"])
	}
	if !strings.Contains(err.Error(), "topic[t-1] not found") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("row", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
}

func TestAppError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", TooManyMatches("orders", 2))
	if !stderrors.Is(err, ErrTooManyMatches) {
		t.Error("expected errors.Is to match on code")
	}
	if stderrors.Is(err, ErrNotFound) {
		t.Error("expected no match against a different code")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"app error", VersionConflict("orders", "1", 3), ErrCodeVersionConflict},
		{"wrapped", fmt.Errorf("x: %w", InsertNotAllowed("orders")), ErrCodeInsertNotAllowed},
		{"plain", stderrors.New("boom"), ErrCodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Storage("insert", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !err.Retryable {
		t.Error("storage errors should be retryable")
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := InvalidDefinition("no stages").WithDetail("pipeline", "p-1")
	if err.Details["pipeline"] != "p-1" {
		t.Errorf("expected detail to be set, got %v", err.Details)
	}
}

func notFoundFromHelper() error {
	return NotFound("row", "r-1")
}

func TestStackOf(t *testing.T) {
	inner := notFoundFromHelper()
	stack := StackOf(fmt.Errorf("read: %w", inner))
	if !strings.Contains(stack, "notFoundFromHelper") || !strings.Contains(stack, "TestStackOf") {
		t.Errorf("stack does not name the creating call chain:\n%s", stack)
	}
	if strings.Contains(stack, "errors.traced") {
		t.Errorf("stack includes the capture frame:\n%s", stack)
	}

	outer := Storage("find", inner)
	if got := StackOf(outer); !strings.Contains(got, "notFoundFromHelper") {
		t.Errorf("expected the innermost stack, got:\n%s", got)
	}
	if got := StackOf(stderrors.New("plain")); got != "" {
		t.Errorf("plain error stack = %q", got)
	}
	if got := StackOf(ErrNotFound); got != "" {
		t.Errorf("sentinel stack = %q", got)
	}
}
