// Package retention compares predicted recall with observed recall and recommends
// per-user target retention adjustments.
//
// The monitor only reads. Writing the recommended targets is the job of the
// Optimizer, a separate step run by the batch runner.
package retention

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/recall/internal/clock"
	srs "github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/internal/observability"
	"github.com/hrygo/recall/store"
)

const (
	// MaxWindowDays bounds the cohort window.
	MaxWindowDays = 3650

	// MinTargetRetention and MaxTargetRetention bound recommended targets.
	MinTargetRetention = 0.70
	MaxTargetRetention = 0.97

	// AdjustmentRate scales the prediction error into a target change.
	AdjustmentRate = 0.5

	// DefaultDeviationThresholdPercent is the deviation above which a user is adjusted.
	DefaultDeviationThresholdPercent = 10.0

	// DefaultMinSampleSize is the number of events needed before adjusting a user.
	DefaultMinSampleSize = 30
)

// Store is the interface for store operations needed by the retention monitor.
type Store interface {
	ListReviewOwners(ctx context.Context) ([]int32, error)
	ListReviewEvents(ctx context.Context, find *store.FindReviewEvent) ([]*store.ReviewEvent, error)
	GetRetentionProfile(ctx context.Context, ownerID int32) (*store.RetentionProfile, error)
	UpsertRetentionProfile(ctx context.Context, upsert *store.RetentionProfile) (*store.RetentionProfile, error)
}

// Report summarizes predicted against actual recall for a cohort of review events.
type Report struct {
	OwnerID            *int32    `json:"owner_id,omitempty"`
	WindowDays         int       `json:"window_days"`
	PredictedRetention float64   `json:"predicted_retention"`
	ActualRetention    float64   `json:"actual_retention"`
	DeviationPercent   float64   `json:"deviation_percent"`
	SampleSize         int       `json:"sample_size"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

// Recommendation is a proposed target retention for one user.
type Recommendation struct {
	OwnerID           int32   `json:"owner_id"`
	CurrentTarget     float64 `json:"current_target"`
	RecommendedTarget float64 `json:"recommended_target"`
	Report            Report  `json:"report"`
}

// Config configures a Monitor.
type Config struct {
	DeviationThresholdPercent float64
	MinSampleSize             int
	Concurrency               int
	Metrics                   *observability.Metrics
}

// Monitor evaluates retention health. It never writes.
type Monitor struct {
	store  Store
	engine *srs.Engine
	clock  clock.Clock
	config Config
}

// NewMonitor creates a monitor. engine supplies the default target and replays
// histories recorded without prior state.
func NewMonitor(st Store, engine *srs.Engine, clk clock.Clock, cfg Config) *Monitor {
	if cfg.DeviationThresholdPercent <= 0 {
		cfg.DeviationThresholdPercent = DefaultDeviationThresholdPercent
	}
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = DefaultMinSampleSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.GlobalMetrics()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Monitor{store: st, engine: engine, clock: clk, config: cfg}
}

// Stability returns the forgetting-curve stability, in days, of a state. A state
// at default strength is predicted at exactly the default target retention when
// its interval has elapsed.
func Stability(state srs.State) float64 {
	return float64(state.IntervalDays) * (state.Strength / srs.DefaultStrength) / -math.Log(srs.DefaultTargetRetention)
}

// PredictedRecall returns exp(-t/S) for elapsedDays t since the last review.
func PredictedRecall(state srs.State, elapsedDays float64) float64 {
	if elapsedDays <= 0 {
		return 1
	}
	return math.Exp(-elapsedDays / Stability(state))
}

// DeviationPercent returns |predicted - actual| / actual * 100. With no observed
// recall at all it is 100 when anything was predicted and 0 otherwise.
func DeviationPercent(predicted, actual float64) float64 {
	if actual == 0 {
		if predicted > 0 {
			return 100
		}
		return 0
	}
	return math.Abs(predicted-actual) / actual * 100
}

// tally accumulates predictions and outcomes.
type tally struct {
	predictedSum float64
	passes       int
	samples      int
}

func (t *tally) add(other tally) {
	t.predictedSum += other.predictedSum
	t.passes += other.passes
	t.samples += other.samples
}

func (t tally) report(windowDays int, at time.Time) Report {
	r := Report{WindowDays: windowDays, SampleSize: t.samples, EvaluatedAt: at}
	if t.samples == 0 {
		return r
	}
	r.PredictedRetention = t.predictedSum / float64(t.samples)
	r.ActualRetention = float64(t.passes) / float64(t.samples)
	r.DeviationPercent = DeviationPercent(r.PredictedRetention, r.ActualRetention)
	return r
}

func validateWindow(windowDays int) error {
	if windowDays <= 0 || windowDays > MaxWindowDays {
		return errors.InvalidArgument("window must be between 1 and 3650 days").WithContext("window_days", windowDays)
	}
	return nil
}

// Evaluate reports retention health over every user's events in the last windowDays days.
func (m *Monitor) Evaluate(ctx context.Context, windowDays int) (*Report, error) {
	if err := validateWindow(windowDays); err != nil {
		return nil, err
	}
	started := time.Now()
	now := m.clock.Now()

	owners, err := m.store.ListReviewOwners(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list review owners", err)
	}

	var (
		mu    sync.Mutex
		total tally
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Concurrency)
	for _, ownerID := range owners {
		g.Go(func() error {
			t, err := m.tallyOwner(gctx, ownerID, windowDays, now)
			if err != nil {
				return err
			}
			mu.Lock()
			total.add(t)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	m.config.Metrics.RecordOperation("retention.evaluate", time.Since(started), err)
	if err != nil {
		return nil, err
	}

	report := total.report(windowDays, now)
	return &report, nil
}

// EvaluateUser reports retention health for one user.
func (m *Monitor) EvaluateUser(ctx context.Context, ownerID int32, windowDays int) (*Report, error) {
	if err := validateWindow(windowDays); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	t, err := m.tallyOwner(ctx, ownerID, windowDays, now)
	if err != nil {
		return nil, err
	}
	report := t.report(windowDays, now)
	report.OwnerID = &ownerID
	return &report, nil
}

// tallyOwner scores the owner's reviews inside the window that had a previous
// review, against the state each one was actually applied to. Events without a
// recorded prior state are reconstructed by replaying the item's history with the
// base engine, so neither path depends on the owner's current target.
func (m *Monitor) tallyOwner(ctx context.Context, ownerID int32, windowDays int, now time.Time) (tally, error) {
	events, err := m.store.ListReviewEvents(ctx, &store.FindReviewEvent{OwnerID: &ownerID})
	if err != nil {
		return tally{}, errors.Internal("failed to list review events", err)
	}

	fromTs := now.AddDate(0, 0, -windowDays).Unix()
	var t tally
	// Events arrive ordered by item, then time.
	for start := 0; start < len(events); {
		end := start
		for end < len(events) && events[end].ItemID == events[start].ItemID {
			end++
		}
		itemEvents := events[start:end]
		start = end

		if itemEvents[len(itemEvents)-1].OccurredTs < fromTs {
			continue
		}
		var replayed []srs.State
		for i, e := range itemEvents {
			if e.OccurredTs < fromTs {
				continue
			}
			prev, ok := e.PriorState()
			if !ok {
				if replayed == nil {
					if replayed, err = m.replay(itemEvents); err != nil {
						slog.Warn("skipping item with unreplayable history",
							"owner_id", ownerID,
							"item_id", e.ItemID,
							"error", err,
						)
						break
					}
				}
				prev = replayed[i]
			}
			if prev.LastReviewedAt == nil {
				continue
			}
			elapsed := time.Unix(e.OccurredTs, 0).Sub(*prev.LastReviewedAt).Hours() / 24
			t.predictedSum += PredictedRecall(prev, elapsed)
			t.samples++
			if srs.Grade(e.Grade).IsPass() {
				t.passes++
			}
		}
	}
	return t, nil
}

// replay reconstructs the state each event was applied to.
func (m *Monitor) replay(itemEvents []*store.ReviewEvent) ([]srs.State, error) {
	events := make([]srs.Event, len(itemEvents))
	for i, e := range itemEvents {
		events[i] = srs.Event{Grade: srs.Grade(e.Grade), OccurredAt: time.Unix(e.OccurredTs, 0).UTC()}
	}
	before, _, err := m.engine.Trace(srs.NewState(events[0].OccurredAt), events)
	return before, err
}

// Recommend proposes a new target when the deviation exceeds the threshold and the
// sample is large enough. When recall is worse than predicted the target rises,
// which shortens intervals. It returns false when no change is warranted.
func (m *Monitor) Recommend(ownerID int32, report Report, profile *store.RetentionProfile) (*Recommendation, bool) {
	if report.SampleSize < m.config.MinSampleSize || report.DeviationPercent <= m.config.DeviationThresholdPercent {
		return nil, false
	}
	current := m.engine.Config().TargetRetention
	if profile != nil {
		current = profile.TargetRetention
	}
	next := current + (report.PredictedRetention-report.ActualRetention)*AdjustmentRate
	next = math.Max(MinTargetRetention, math.Min(MaxTargetRetention, next))
	// Round to avoid churn from float noise.
	next = math.Round(next*1000) / 1000
	if next == current {
		return nil, false
	}
	return &Recommendation{
		OwnerID:           ownerID,
		CurrentTarget:     current,
		RecommendedTarget: next,
		Report:            report,
	}, true
}
