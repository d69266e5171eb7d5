package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/internal/clock"
	srs "github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/internal/observability"
	"github.com/hrygo/recall/server/notify"
	"github.com/hrygo/recall/store"
	"github.com/hrygo/recall/store/test"
)

var day0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func createItem(ctx context.Context, t *testing.T, ts *store.Store, ownerID int32, ref string, strength float64, due time.Time, groupID *int32) *store.ReviewItem {
	t.Helper()
	item, _, err := ts.GetOrCreateReviewItem(ctx, ownerID, ref, func(item *store.ReviewItem) {
		state := srs.NewState(due)
		state.Strength = strength
		item.SetState(state)
	})
	require.NoError(t, err)
	if groupID != nil {
		item, err = ts.UpdateReviewItem(ctx, &store.UpdateReviewItem{ID: item.ID, GroupID: groupID})
		require.NoError(t, err)
	}
	return item
}

func newAggregator(t *testing.T, st Store, notifier Notifier) *Aggregator {
	t.Helper()
	aggregator, err := NewAggregator(st, Options{
		Clock:    clock.NewFixed(day0),
		Notifier: notifier,
		Metrics:  observability.NewMetrics(),
	})
	require.NoError(t, err)
	return aggregator
}

func TestPartition(t *testing.T) {
	thresholds := srs.DefaultThresholds()
	now := day0.Unix()

	tests := []struct {
		name      string
		strengths []float64
		want      Distribution
	}{
		{
			name: "empty",
			want: Distribution{},
		},
		{
			name:      "boundaries belong to the upper bucket",
			strengths: []float64{1.5, 2.5},
			want:      Distribution{Mastered: 1, Learning: 1, Total: 2, DueNow: 2},
		},
		{
			name:      "mixed",
			strengths: []float64{1.3, 1.49, 2.0, 2.49, 3.1},
			want:      Distribution{Mastered: 1, Learning: 2, New: 2, Total: 5, DueNow: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]*store.ReviewItem, 0, len(tt.strengths))
			for _, s := range tt.strengths {
				items = append(items, &store.ReviewItem{Strength: s, DueTs: now})
			}
			assert.Equal(t, tt.want, Partition(items, thresholds, now))
		})
	}

	due := Partition([]*store.ReviewItem{
		{Strength: 2.5, DueTs: now - 1, TotalReviews: 4, CorrectReviews: 3},
		{Strength: 2.5, DueTs: now + 1, TotalReviews: 2, CorrectReviews: 2},
	}, thresholds, now)
	assert.Equal(t, 1, due.DueNow)
	assert.Equal(t, 6, due.TotalReviews)
	assert.Equal(t, 5, due.CorrectReviews)
}

// A fixed fixture set, partitioned by hand: new {1.3, 1.45}, learning {1.5, 2.0, 2.49},
// mastered {2.5, 2.7, 3.0}.
func TestGroupStatisticsMatchesHandPartition(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	aggregator := newAggregator(t, ts, nil)

	group, err := ts.CreateGroup(ctx, &store.Group{OwnerID: 1, Name: "fixture"})
	require.NoError(t, err)
	for i, strength := range []float64{1.3, 1.45, 1.5, 2.0, 2.49, 2.5, 2.7, 3.0} {
		createItem(ctx, t, ts, 1, fmt.Sprintf("fixture-%d", i), strength, day0, &group.ID)
	}
	// Not a member.
	createItem(ctx, t, ts, 1, "loose", 3.0, day0, nil)

	// Never computed: computed on demand.
	snapshot, err := aggregator.GetGroupStatistics(ctx, 1, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Mastered)
	assert.Equal(t, 3, snapshot.Learning)
	assert.Equal(t, 2, snapshot.New)
	assert.Equal(t, 8, snapshot.Total)
	assert.Equal(t, day0.Unix(), snapshot.ComputedTs)

	// Reads come from the persisted snapshot until the next recomputation.
	createItem(ctx, t, ts, 1, "late", 1.3, day0, &group.ID)
	snapshot, err = aggregator.GetGroupStatistics(ctx, 1, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, snapshot.Total)

	snapshot, err = aggregator.RecomputeGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.New)
	assert.Equal(t, 9, snapshot.Total)

	// Recomputing is idempotent.
	again, err := aggregator.RecomputeGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot, again)

	stored, err := ts.GetGroup(ctx, &store.FindGroup{ID: &group.ID})
	require.NoError(t, err)
	require.NotNil(t, stored.Snapshot)
	assert.Equal(t, 9, stored.Snapshot.Total)
}

func TestGroupStatisticsErrors(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	aggregator := newAggregator(t, ts, nil)

	group, err := ts.CreateGroup(ctx, &store.Group{OwnerID: 1, Name: "mine"})
	require.NoError(t, err)

	_, err = aggregator.GetGroupStatistics(ctx, 2, group.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotOwner))

	_, err = aggregator.GetGroupStatistics(ctx, 1, 4040)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	_, err = aggregator.RecomputeGroup(ctx, 4040)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	// An empty group has an all-zero snapshot.
	snapshot, err := aggregator.GetGroupStatistics(ctx, 1, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.Total)
}

func TestRecomputeAll(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	memory := notify.NewMemorySender()
	dispatcher := notify.NewDispatcher()
	dispatcher.Register(memory)
	aggregator := newAggregator(t, ts, dispatcher)

	group, err := ts.CreateGroup(ctx, &store.Group{OwnerID: 1, Name: "g"})
	require.NoError(t, err)
	createItem(ctx, t, ts, 1, "a", 2.6, day0.Add(-time.Hour), &group.ID)
	createItem(ctx, t, ts, 1, "b", 1.4, day0.AddDate(0, 0, 2), &group.ID)
	createItem(ctx, t, ts, 1, "c", 1.8, day0, nil)
	createItem(ctx, t, ts, 2, "a", 2.5, day0.AddDate(0, 0, -3), nil)

	counters, err := aggregator.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counters.Users)
	assert.Equal(t, 4, counters.Total)
	assert.Equal(t, 2, counters.Mastered)
	assert.Equal(t, 1, counters.Learning)
	assert.Equal(t, 1, counters.New)
	assert.Equal(t, 3, counters.DueNow)
	assert.Equal(t, counters, aggregator.Global())

	userStats, err := aggregator.GetUserStatistics(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, userStats.Total)
	assert.Equal(t, 2, userStats.DueNow)

	// Group snapshots are refreshed with their owner.
	snapshot, err := ts.GetGroupSnapshot(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 2, snapshot.Total)

	facts := memory.Facts()
	require.Len(t, facts, 2)
	dueByOwner := map[int32]int{}
	for _, f := range facts {
		dueByOwner[f.OwnerID] = f.DueCount
		assert.True(t, f.ComputedAt.Equal(day0))
	}
	assert.Equal(t, map[int32]int{1: 2, 2: 1}, dueByOwner)
}

func TestRecomputeAllCanceledKeepsPreviousCounters(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	aggregator := newAggregator(t, ts, nil)
	createItem(ctx, t, ts, 1, "a", 2.6, day0, nil)

	first, err := aggregator.RecomputeAll(ctx)
	require.NoError(t, err)

	createItem(ctx, t, ts, 1, "b", 2.6, day0, nil)
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = aggregator.RecomputeAll(canceled)
	require.Error(t, err)

	assert.Equal(t, first.Total, aggregator.Global().Total)
	userStats, err := aggregator.GetUserStatistics(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, userStats.Total)
}

func TestNewAggregatorValidatesThresholds(t *testing.T) {
	_, err := NewAggregator(nil, Options{Thresholds: srs.Thresholds{Mastered: 1.5, Learning: 2.5}})
	require.Error(t, err)

	aggregator, err := NewAggregator(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, srs.DefaultThresholds(), aggregator.Thresholds())
}
