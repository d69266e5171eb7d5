package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/server/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatus maps an error code onto its HTTP status.
func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidGrade, errors.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case errors.ErrCodeNotOwner:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConcurrentModification:
		return http.StatusConflict
	case errors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case errors.ErrCodeContextCanceled:
		// Client closed request.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an ErrorResponse. Internal causes are logged, not returned.
func writeError(c echo.Context, err error) error {
	reviewErr := errors.FromError(err)
	status := httpStatus(reviewErr.Code)
	message := reviewErr.Message
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "internal error",
			"path", c.Path(),
			"error", err,
		)
		message = "internal error"
	}
	return c.JSON(status, ErrorResponse{Code: string(reviewErr.Code), Message: message})
}

func pathID(c echo.Context, name string) (int32, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil || v <= 0 {
		return 0, errors.InvalidArgument("invalid " + name).WithContext(name, c.Param(name))
	}
	return int32(v), nil
}

// queryInt returns the named query parameter, or def when it is absent.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidArgument(name + " must be an integer").WithContext(name, raw)
	}
	return v, nil
}
