// Package stats aggregates mastery statistics from current item states.
//
// Every recomputation derives counts wholesale from the items as they are now and
// persists the result in a single write, so re-running is always safe and an
// aborted run leaves the previous snapshot in place.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/recall/internal/clock"
	srs "github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/internal/observability"
	"github.com/hrygo/recall/server/notify"
	"github.com/hrygo/recall/store"
)

// DefaultConcurrency bounds parallel per-user recomputation.
const DefaultConcurrency = 4

// Store is the interface for store operations needed by the aggregator.
type Store interface {
	ListReviewItems(ctx context.Context, find *store.FindReviewItem) ([]*store.ReviewItem, error)
	ListReviewOwners(ctx context.Context) ([]int32, error)
	ListGroups(ctx context.Context, find *store.FindGroup) ([]*store.Group, error)
	GetGroup(ctx context.Context, find *store.FindGroup) (*store.Group, error)
	GetGroupSnapshot(ctx context.Context, groupID int32) (*store.GroupSnapshot, error)
	UpdateGroup(ctx context.Context, update *store.UpdateGroup) (*store.Group, error)
	UpsertUserStatistics(ctx context.Context, upsert *store.UserStatistics) (*store.UserStatistics, error)
	ListUserStatistics(ctx context.Context, find *store.FindUserStatistics) ([]*store.UserStatistics, error)
}

// Notifier receives the due count of every recomputed user.
type Notifier interface {
	Notify(ctx context.Context, fact notify.DueCountFact) error
}

// Distribution is the partition of a set of items by mastery bucket.
type Distribution struct {
	Mastered       int
	Learning       int
	New            int
	Total          int
	DueNow         int
	TotalReviews   int
	CorrectReviews int
}

// Partition buckets items by strength and counts those due at nowTs.
func Partition(items []*store.ReviewItem, thresholds srs.Thresholds, nowTs int64) Distribution {
	var d Distribution
	for _, item := range items {
		switch thresholds.Classify(item.Strength) {
		case srs.MasteryMastered:
			d.Mastered++
		case srs.MasteryLearning:
			d.Learning++
		default:
			d.New++
		}
		if item.DueTs <= nowTs {
			d.DueNow++
		}
		d.TotalReviews += item.TotalReviews
		d.CorrectReviews += item.CorrectReviews
	}
	d.Total = len(items)
	return d
}

// GlobalCounters sums the per-user snapshots of the last complete run.
type GlobalCounters struct {
	Users          int       `json:"users"`
	Mastered       int       `json:"mastered"`
	Learning       int       `json:"learning"`
	New            int       `json:"new"`
	Total          int       `json:"total"`
	DueNow         int       `json:"due_now"`
	TotalReviews   int       `json:"total_reviews"`
	CorrectReviews int       `json:"correct_reviews"`
	LastUpdated    time.Time `json:"last_updated"`
	LastDuration   int64     `json:"last_duration_ms"`
}

// Options configures an Aggregator.
type Options struct {
	Thresholds  srs.Thresholds
	Clock       clock.Clock
	Notifier    Notifier
	Concurrency int
	Metrics     *observability.Metrics
}

// Aggregator recomputes group and user snapshots.
type Aggregator struct {
	store       Store
	thresholds  srs.Thresholds
	clock       clock.Clock
	notifier    Notifier
	concurrency int
	metrics     *observability.Metrics

	mu     sync.Mutex
	global *GlobalCounters
}

// NewAggregator creates an aggregator. Thresholds are validated here.
func NewAggregator(st Store, opts Options) (*Aggregator, error) {
	if opts.Thresholds == (srs.Thresholds{}) {
		opts.Thresholds = srs.DefaultThresholds()
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.GlobalMetrics()
	}
	return &Aggregator{
		store:       st,
		thresholds:  opts.Thresholds,
		clock:       opts.Clock,
		notifier:    opts.Notifier,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		global:      &GlobalCounters{},
	}, nil
}

// Thresholds returns the mastery thresholds in use.
func (a *Aggregator) Thresholds() srs.Thresholds {
	return a.thresholds
}

// RecomputeGroup recomputes and persists the snapshot of one group.
func (a *Aggregator) RecomputeGroup(ctx context.Context, groupID int32) (*store.GroupSnapshot, error) {
	group, err := a.store.GetGroup(ctx, &store.FindGroup{ID: &groupID})
	if err != nil {
		return nil, errors.Internal("failed to load group", err)
	}
	if group == nil {
		return nil, errors.NotFound("group", groupID)
	}

	now := a.clock.Now()
	items, err := a.store.ListReviewItems(ctx, &store.FindReviewItem{GroupID: &groupID})
	if err != nil {
		return nil, errors.Internal("failed to list group items", err)
	}
	return a.persistGroup(ctx, groupID, Partition(items, a.thresholds, now.Unix()), now)
}

func (a *Aggregator) persistGroup(ctx context.Context, groupID int32, d Distribution, now time.Time) (*store.GroupSnapshot, error) {
	// Abort before the write so an interrupted run keeps the previous snapshot.
	if err := ctx.Err(); err != nil {
		return nil, errors.ContextCanceled(err)
	}
	snapshot := &store.GroupSnapshot{
		GroupID:    groupID,
		Mastered:   d.Mastered,
		Learning:   d.Learning,
		New:        d.New,
		Total:      d.Total,
		ComputedTs: now.Unix(),
	}
	if _, err := a.store.UpdateGroup(ctx, &store.UpdateGroup{ID: groupID, Snapshot: snapshot}); err != nil {
		return nil, errors.Internal("failed to persist group snapshot", err)
	}
	return snapshot, nil
}

// RecomputeUser recomputes the owner's snapshot and the snapshots of all the
// owner's groups from one read of the owner's items, then emits the due count.
func (a *Aggregator) RecomputeUser(ctx context.Context, ownerID int32) (*store.UserStatistics, error) {
	now := a.clock.Now()
	items, err := a.store.ListReviewItems(ctx, &store.FindReviewItem{OwnerID: &ownerID})
	if err != nil {
		return nil, errors.Internal("failed to list review items", err)
	}
	groups, err := a.store.ListGroups(ctx, &store.FindGroup{OwnerID: &ownerID})
	if err != nil {
		return nil, errors.Internal("failed to list groups", err)
	}

	byGroup := make(map[int32][]*store.ReviewItem, len(groups))
	for _, item := range items {
		if item.GroupID != nil {
			byGroup[*item.GroupID] = append(byGroup[*item.GroupID], item)
		}
	}
	for _, group := range groups {
		if _, err := a.persistGroup(ctx, group.ID, Partition(byGroup[group.ID], a.thresholds, now.Unix()), now); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ContextCanceled(err)
	}
	d := Partition(items, a.thresholds, now.Unix())
	userStats, err := a.store.UpsertUserStatistics(ctx, &store.UserStatistics{
		OwnerID:        ownerID,
		Mastered:       d.Mastered,
		Learning:       d.Learning,
		New:            d.New,
		Total:          d.Total,
		DueNow:         d.DueNow,
		TotalReviews:   d.TotalReviews,
		CorrectReviews: d.CorrectReviews,
		ComputedTs:     now.Unix(),
	})
	if err != nil {
		return nil, errors.Internal("failed to persist user statistics", err)
	}

	if a.notifier != nil {
		fact := notify.DueCountFact{OwnerID: ownerID, DueCount: d.DueNow, ComputedAt: now}
		if err := a.notifier.Notify(ctx, fact); err != nil {
			// Delivery is external; a failed channel does not fail the recomputation.
			slog.Warn("failed to deliver due count", "owner_id", ownerID, "error", err)
		}
	}
	return userStats, nil
}

// RecomputeAll recomputes every owner with bounded parallelism and publishes the
// summed counters. On any failure the previous counters stay in place.
func (a *Aggregator) RecomputeAll(ctx context.Context) (*GlobalCounters, error) {
	started := time.Now()
	counters, err := a.recomputeAll(ctx)
	a.metrics.RecordOperation("stats.recompute_all", time.Since(started), err)
	if err != nil {
		slog.Error("statistics recomputation failed", "error", err)
		return nil, err
	}

	counters.LastDuration = time.Since(started).Milliseconds()
	a.mu.Lock()
	a.global = counters
	a.mu.Unlock()

	slog.Info("statistics recomputed",
		"users", counters.Users,
		"items", counters.Total,
		"duration_ms", counters.LastDuration,
	)
	return a.Global(), nil
}

func (a *Aggregator) recomputeAll(ctx context.Context) (*GlobalCounters, error) {
	owners, err := a.store.ListReviewOwners(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list review owners", err)
	}

	results := make([]*store.UserStatistics, len(owners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, ownerID := range owners {
		g.Go(func() error {
			userStats, err := a.RecomputeUser(gctx, ownerID)
			if err != nil {
				return err
			}
			results[i] = userStats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counters := &GlobalCounters{Users: len(results), LastUpdated: a.clock.Now()}
	for _, s := range results {
		counters.Mastered += s.Mastered
		counters.Learning += s.Learning
		counters.New += s.New
		counters.Total += s.Total
		counters.DueNow += s.DueNow
		counters.TotalReviews += s.TotalReviews
		counters.CorrectReviews += s.CorrectReviews
	}
	return counters, nil
}

// Global returns a copy of the counters of the last complete run.
func (a *Aggregator) Global() *GlobalCounters {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := *a.global
	return &c
}

// GetGroupStatistics returns the persisted snapshot of an owner's group. A group
// that has never been computed is computed once on demand.
func (a *Aggregator) GetGroupStatistics(ctx context.Context, ownerID, groupID int32) (*store.GroupSnapshot, error) {
	group, err := a.store.GetGroup(ctx, &store.FindGroup{ID: &groupID})
	if err != nil {
		return nil, errors.Internal("failed to load group", err)
	}
	if group == nil {
		return nil, errors.NotFound("group", groupID)
	}
	if group.OwnerID != ownerID {
		return nil, errors.NotOwner("group", groupID)
	}

	snapshot, err := a.store.GetGroupSnapshot(ctx, groupID)
	if err != nil {
		return nil, errors.Internal("failed to load group snapshot", err)
	}
	if snapshot != nil {
		return snapshot, nil
	}
	return a.RecomputeGroup(ctx, groupID)
}

// GetUserStatistics returns the owner's persisted snapshot, computing it when absent.
func (a *Aggregator) GetUserStatistics(ctx context.Context, ownerID int32) (*store.UserStatistics, error) {
	list, err := a.store.ListUserStatistics(ctx, &store.FindUserStatistics{OwnerID: &ownerID})
	if err != nil {
		return nil, errors.Internal("failed to load user statistics", err)
	}
	if len(list) > 0 {
		return list[0], nil
	}
	return a.RecomputeUser(ctx, ownerID)
}
