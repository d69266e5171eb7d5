// Package server assembles the services, the batch runner and the HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/recall/internal/clock"
	"github.com/hrygo/recall/internal/profile"
	srs "github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/server/internal/observability"
	"github.com/hrygo/recall/server/notify"
	"github.com/hrygo/recall/server/retention"
	apiv1 "github.com/hrygo/recall/server/router/api/v1"
	"github.com/hrygo/recall/server/runner/batch"
	"github.com/hrygo/recall/server/service/review"
	"github.com/hrygo/recall/server/stats"
	"github.com/hrygo/recall/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	Aggregator *stats.Aggregator
	Optimizer  *retention.Optimizer
	Runner     *batch.Runner

	echoServer *echo.Echo
}

// NewServer wires the services over the store.
func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store) (*Server, error) {
	engine, err := srs.NewEngine(profile.EngineConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduling engine")
	}
	clk := clock.Real{}
	metrics := observability.GlobalMetrics()

	dispatcher := notify.NewDispatcher()
	dispatcher.Register(notify.NewLogSender(slog.Default()))
	if profile.WebhookURL != "" {
		dispatcher.Register(notify.NewWebhookSender(notify.WebhookConfig{URL: profile.WebhookURL}))
	}

	reviewConfig := review.ConfigFromProfile(profile)
	reviewConfig.Metrics = metrics
	reviewService := review.NewService(st, engine, clk, reviewConfig)

	aggregator, err := stats.NewAggregator(st, stats.Options{
		Thresholds:  profile.Thresholds(),
		Clock:       clk,
		Notifier:    dispatcher,
		Concurrency: profile.BatchConcurrency,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create statistics aggregator")
	}

	monitor := retention.NewMonitor(st, engine, clk, retention.Config{
		DeviationThresholdPercent: profile.DeviationThresholdPercent,
		MinSampleSize:             profile.MinSampleSize,
		Concurrency:               profile.BatchConcurrency,
		Metrics:                   metrics,
	})
	optimizer := retention.NewOptimizer(monitor)

	s := &Server{
		Profile:    profile,
		Store:      st,
		Aggregator: aggregator,
		Optimizer:  optimizer,
		Runner: batch.NewRunner(aggregator, optimizer, batch.Config{
			StatsCron:           profile.StatsCron,
			RetentionCron:       profile.RetentionCron,
			RetentionWindowDays: profile.RetentionWindowDays,
			JobTimeout:          30 * time.Minute,
		}),
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	apiv1.NewAPIV1Service(profile, reviewService, aggregator, monitor, metrics).Register(echoServer)
	s.echoServer = echoServer

	slog.Info("notification channels registered", "channels", dispatcher.Channels())
	return s, nil
}

// Start starts the batch runner and the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	if err := s.Runner.Start(ctx); err != nil {
		listener.Close()
		return errors.Wrap(err, "failed to start batch runner")
	}

	go func() {
		s.echoServer.Listener = listener
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the HTTP server, then the batch runner, then closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	s.Runner.Stop()
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server stopped properly")
}
