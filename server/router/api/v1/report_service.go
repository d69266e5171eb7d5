package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DefaultHorizonDays is the workload horizon when the client does not ask for one.
const DefaultHorizonDays = 7

// GET /api/v1/statistics
func (s *APIV1Service) GetUserStatistics(c echo.Context) error {
	userStats, err := s.Aggregator.GetUserStatistics(c.Request().Context(), ownerID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, userStats)
}

// GetWorkloadProjection counts the caller's due items per calendar day.
// GET /api/v1/workload?horizon_days=
func (s *APIV1Service) GetWorkloadProjection(c echo.Context) error {
	horizon, err := queryInt(c, "horizon_days", DefaultHorizonDays)
	if err != nil {
		return writeError(c, err)
	}
	projection, err := s.ReviewService.GetWorkloadProjection(c.Request().Context(), ownerID(c), horizon)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, WorkloadResponse{
		StartDay: projection.StartDay,
		Counts:   projection.Counts,
		Overdue:  projection.Overdue,
		Total:    projection.Total(),
	})
}

// GetRetentionHealth compares predicted and observed recall across all users.
// GET /api/v1/retention/health?window_days=
func (s *APIV1Service) GetRetentionHealth(c echo.Context) error {
	window, err := queryInt(c, "window_days", s.RetentionWindow)
	if err != nil {
		return writeError(c, err)
	}
	report, err := s.Monitor.Evaluate(c.Request().Context(), window)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// GET /api/v1/retention/health/me?window_days=
func (s *APIV1Service) GetUserRetentionHealth(c echo.Context) error {
	window, err := queryInt(c, "window_days", s.RetentionWindow)
	if err != nil {
		return writeError(c, err)
	}
	report, err := s.Monitor.EvaluateUser(c.Request().Context(), ownerID(c), window)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
