package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/server/internal/observability"
	"github.com/hrygo/recall/server/stats"
)

// SystemMetricsResponse is the in-process metrics overview.
type SystemMetricsResponse struct {
	*observability.MetricsSnapshot
	SuccessRate float64               `json:"success_rate"`
	Global      *stats.GlobalCounters `json:"global,omitempty"`
}

// GetSystemMetrics returns the service counters and the last batch totals.
// GET /api/v1/system/metrics
func (s *APIV1Service) GetSystemMetrics(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	resp := SystemMetricsResponse{
		MetricsSnapshot: snapshot,
		SuccessRate:     snapshot.SuccessRate(),
	}
	if s.Aggregator != nil {
		resp.Global = s.Aggregator.Global()
	}
	return c.JSON(http.StatusOK, resp)
}

// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
