package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/store"
)

// Result describes one optimization run.
type Result struct {
	Evaluated       int               `json:"evaluated"`
	Recommendations []*Recommendation `json:"recommendations"`
}

// Optimizer writes the monitor's recommendations to the users' retention profiles.
type Optimizer struct {
	monitor *Monitor
}

// NewOptimizer creates an optimizer on top of a monitor.
func NewOptimizer(monitor *Monitor) *Optimizer {
	return &Optimizer{monitor: monitor}
}

// Apply evaluates every user over the window and persists the recommended targets.
// A user that fails to evaluate is logged and skipped; cancellation stops the run.
func (o *Optimizer) Apply(ctx context.Context, windowDays int) (*Result, error) {
	if err := validateWindow(windowDays); err != nil {
		return nil, err
	}
	started := time.Now()
	result, err := o.apply(ctx, windowDays)
	o.monitor.config.Metrics.RecordOperation("retention.optimize", time.Since(started), err)
	if err != nil {
		slog.Error("retention optimization failed", "error", err)
		return nil, err
	}
	slog.Info("retention optimization finished",
		"evaluated", result.Evaluated,
		"updated", len(result.Recommendations),
	)
	return result, nil
}

func (o *Optimizer) apply(ctx context.Context, windowDays int) (*Result, error) {
	m := o.monitor
	owners, err := m.store.ListReviewOwners(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list review owners", err)
	}

	result := &Result{Recommendations: []*Recommendation{}}
	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			return nil, errors.ContextCanceled(err)
		}

		report, err := m.EvaluateUser(ctx, ownerID, windowDays)
		if err != nil {
			slog.Warn("failed to evaluate retention", "owner_id", ownerID, "error", err)
			continue
		}
		result.Evaluated++

		profile, err := m.store.GetRetentionProfile(ctx, ownerID)
		if err != nil {
			slog.Warn("failed to load retention profile", "owner_id", ownerID, "error", err)
			continue
		}
		rec, ok := m.Recommend(ownerID, *report, profile)
		if !ok {
			continue
		}

		if _, err := m.store.UpsertRetentionProfile(ctx, &store.RetentionProfile{
			OwnerID:         ownerID,
			TargetRetention: rec.RecommendedTarget,
			SampleSize:      report.SampleSize,
			LastOptimizedTs: report.EvaluatedAt.Unix(),
		}); err != nil {
			slog.Warn("failed to write retention profile", "owner_id", ownerID, "error", err)
			continue
		}
		slog.Info("target retention adjusted",
			"owner_id", ownerID,
			"from", rec.CurrentTarget,
			"to", rec.RecommendedTarget,
			"deviation_percent", report.DeviationPercent,
			"sample_size", report.SampleSize,
		)
		result.Recommendations = append(result.Recommendations, rec)
	}
	return result, nil
}
