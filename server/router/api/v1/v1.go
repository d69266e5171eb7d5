package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/server/internal/observability"
	"github.com/hrygo/recall/server/middleware"
	"github.com/hrygo/recall/server/retention"
	"github.com/hrygo/recall/server/service/review"
	"github.com/hrygo/recall/server/stats"
)

// OwnerHeader carries the authenticated user id, set by the upstream auth proxy.
const OwnerHeader = "X-Owner-ID"

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

const ownerContextKey = "owner_id"

type APIV1Service struct {
	Profile         *profile.Profile
	ReviewService   review.Service
	Aggregator      *stats.Aggregator
	Monitor         *retention.Monitor
	Metrics         *observability.Metrics
	SubmitLimiter   *middleware.RateLimiter
	RetentionWindow int
}

func NewAPIV1Service(profile *profile.Profile, reviewService review.Service, aggregator *stats.Aggregator, monitor *retention.Monitor, metrics *observability.Metrics) *APIV1Service {
	if metrics == nil {
		metrics = observability.GlobalMetrics()
	}
	window := profile.RetentionWindowDays
	if window <= 0 {
		window = 30
	}
	return &APIV1Service{
		Profile:         profile,
		ReviewService:   reviewService,
		Aggregator:      aggregator,
		Monitor:         monitor,
		Metrics:         metrics,
		SubmitLimiter:   middleware.NewRateLimiter(profile.RateLimitPerSecond, profile.RateLimitBurst),
		RetentionWindow: window,
	}
}

// Register mounts the API routes on the echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	echoServer.GET("/healthz", s.Healthz)

	api := echoServer.Group("/api/v1", echomiddleware.Recover(), s.requestContext)
	api.GET("/system/metrics", s.GetSystemMetrics)

	owned := api.Group("", s.requireOwner)
	owned.POST("/items", s.GetOrCreateItem)
	owned.GET("/items/:id", s.GetItem)
	owned.DELETE("/items/:id", s.DeleteItem)
	owned.GET("/items/:id/history", s.ListHistory)
	owned.GET("/items/:id/preview", s.PreviewReview)
	owned.POST("/items/:id/reviews", s.SubmitReview, middleware.RateLimit(s.SubmitLimiter, ownerKey))
	owned.GET("/reviews/due", s.GetDueItems)

	owned.POST("/groups", s.CreateGroup)
	owned.DELETE("/groups/:id", s.DeleteGroup)
	owned.GET("/groups/:id/statistics", s.GetGroupStatistics)
	owned.POST("/groups/:id/items/:itemId", s.AddToGroup)
	owned.DELETE("/groups/:id/items/:itemId", s.RemoveFromGroup)

	owned.GET("/statistics", s.GetUserStatistics)
	owned.GET("/workload", s.GetWorkloadProjection)
	owned.GET("/retention/health", s.GetRetentionHealth)
	owned.GET("/retention/health/me", s.GetUserRetentionHealth)
}

// requestContext attaches a structured request context and logs the outcome.
func (s *APIV1Service) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		operation := req.Method + " " + c.Path()
		var reqCtx *observability.RequestContext
		if id := req.Header.Get(RequestIDHeader); id != "" {
			reqCtx = observability.NewRequestContextWithID(slog.Default(), id, operation, 0)
		} else {
			reqCtx = observability.NewRequestContext(slog.Default(), operation, 0)
		}
		if owner, err := parseOwner(req.Header.Get(OwnerHeader)); err == nil {
			reqCtx.OwnerID = owner
		}
		c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
		c.Response().Header().Set(RequestIDHeader, reqCtx.RequestID)

		err := next(c)
		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
		}
		switch {
		case err != nil:
			reqCtx.Error("request failed", err, attrs...)
		case status >= http.StatusInternalServerError:
			reqCtx.Warn("request failed", attrs...)
		default:
			reqCtx.Debug("request served", attrs...)
		}
		return err
	}
}

// requireOwner rejects requests without a valid owner header.
func (s *APIV1Service) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner, err := parseOwner(c.Request().Header.Get(OwnerHeader))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Code:    "UNAUTHENTICATED",
				Message: "missing or invalid " + OwnerHeader + " header",
			})
		}
		c.Set(ownerContextKey, owner)
		return next(c)
	}
}

func ownerKey(c echo.Context) string {
	if owner, ok := c.Get(ownerContextKey).(int32); ok {
		return strconv.FormatInt(int64(owner), 10)
	}
	return ""
}

func ownerID(c echo.Context) int32 {
	owner, _ := c.Get(ownerContextKey).(int32)
	return owner
}

func parseOwner(raw string) (int32, error) {
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, strconv.ErrRange
	}
	return int32(v), nil
}
