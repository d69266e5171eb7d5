package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/store"
)

// ErrorCode identifies the kind of failure reported to callers.
type ErrorCode string

const (
	// ErrCodeInvalidGrade indicates a grade outside 0..5.
	ErrCodeInvalidGrade ErrorCode = "INVALID_GRADE"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the item or group does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeNotOwner indicates the caller does not own the item or group.
	ErrCodeNotOwner ErrorCode = "NOT_OWNER"
	// ErrCodeConcurrentModification indicates the item changed underneath the caller.
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	// ErrCodeEngineOverflow indicates a computed value was clamped. It is a warning.
	ErrCodeEngineOverflow ErrorCode = "ENGINE_OVERFLOW"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// ReviewError is a coded error returned by the review services.
type ReviewError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *ReviewError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ReviewError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *ReviewError) WithContext(key string, value any) *ReviewError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *ReviewError) GetCode() ErrorCode {
	return e.Code
}

// InvalidGrade creates an invalid grade error.
func InvalidGrade(grade int) *ReviewError {
	return &ReviewError{
		Code:    ErrCodeInvalidGrade,
		Message: fmt.Sprintf("grade %d is outside 0..5", grade),
		Cause:   review.ErrInvalidGrade,
	}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *ReviewError {
	return &ReviewError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error for the named resource.
func NotFound(resource string, id any) *ReviewError {
	return &ReviewError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

// NotOwner creates an ownership error.
func NotOwner(resource string, id any) *ReviewError {
	return &ReviewError{Code: ErrCodeNotOwner, Message: fmt.Sprintf("%s %v is owned by another user", resource, id)}
}

// ConcurrentModification creates a conflict error.
func ConcurrentModification(itemID int32, cause error) *ReviewError {
	return &ReviewError{
		Code:    ErrCodeConcurrentModification,
		Message: fmt.Sprintf("review item %d was modified concurrently", itemID),
		Cause:   cause,
	}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *ReviewError {
	return &ReviewError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *ReviewError {
	return &ReviewError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Internal creates an internal error.
func Internal(msg string, cause error) *ReviewError {
	return &ReviewError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *ReviewError {
	return &ReviewError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error chain carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	var reviewErr *ReviewError
	if stderrors.As(err, &reviewErr) {
		return reviewErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a ReviewError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var reviewErr *ReviewError
	if stderrors.As(err, &reviewErr) {
		return reviewErr.Code
	}
	return defaultCode
}

// FromError classifies err by the sentinels of the engine and the store.
// Errors that are already coded are returned unchanged.
func FromError(err error) *ReviewError {
	if err == nil {
		return nil
	}
	var reviewErr *ReviewError
	if stderrors.As(err, &reviewErr) {
		return reviewErr
	}

	switch {
	case stderrors.Is(err, review.ErrInvalidGrade):
		return Wrap(err, ErrCodeInvalidGrade, "invalid grade")
	case stderrors.Is(err, review.ErrInvalidState),
		stderrors.Is(err, review.ErrInvalidConfig),
		stderrors.Is(err, review.ErrInvalidThresholds):
		return Wrap(err, ErrCodeInvalidArgument, "invalid argument")
	case stderrors.Is(err, review.ErrEngineOverflow):
		return Wrap(err, ErrCodeEngineOverflow, "value clamped")
	case stderrors.Is(err, store.ErrVersionConflict):
		return Wrap(err, ErrCodeConcurrentModification, "concurrent modification")
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return ContextCanceled(err)
	default:
		return Internal("internal error", err)
	}
}
