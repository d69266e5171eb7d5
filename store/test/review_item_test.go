package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/store"
)

var day0 = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func newItemState(now time.Time) func(*store.ReviewItem) {
	return func(item *store.ReviewItem) {
		item.SetState(review.NewState(now))
	}
}

func TestReviewItemGetOrCreate(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	item, created, err := ts.GetOrCreateReviewItem(ctx, 1, "card:42", newItemState(day0))
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, item.UID)
	require.Equal(t, int64(1), item.Version)
	require.Equal(t, review.DefaultStrength, item.Strength)
	require.Equal(t, 1, item.IntervalDays)
	require.Equal(t, 0, item.Repetitions)
	require.Equal(t, day0.Unix(), item.DueTs)
	require.Nil(t, item.LastReviewedTs)

	again, created, err := ts.GetOrCreateReviewItem(ctx, 1, "card:42", newItemState(day0.Add(time.Hour)))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, item.ID, again.ID)
	require.Equal(t, item.DueTs, again.DueTs)

	// Same content for another owner is a different item.
	other, created, err := ts.GetOrCreateReviewItem(ctx, 2, "card:42", newItemState(day0))
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, item.ID, other.ID)
}

func TestReviewItemGetOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	const workers = 8
	ids := make([]int32, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item, _, err := ts.GetOrCreateReviewItem(ctx, 5, "card:race", newItemState(day0))
			if err == nil {
				ids[i] = item.ID
			}
		}(i)
	}
	wg.Wait()

	count, err := ts.CountReviewItems(ctx, &store.FindReviewItem{})
	require.NoError(t, err)
	require.Equal(t, 1, count)
	for _, id := range ids {
		if id != 0 {
			require.Equal(t, ids[0], id)
		}
	}
}

func TestReviewItemApplyReview(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	item, _, err := ts.GetOrCreateReviewItem(ctx, 1, "card:1", newItemState(day0))
	require.NoError(t, err)

	engine := review.MustNewEngine(review.DefaultConfig())
	out, err := engine.Advance(item.State(), review.GradePerfect, day0)
	require.NoError(t, err)

	next := *item
	next.SetState(out.State)
	next.TotalReviews++
	next.CorrectReviews++
	next.UpdatedTs = day0.Unix()
	event := &store.ReviewEvent{Grade: int(review.GradePerfect), ResponseLatencyMs: 1200, OccurredTs: day0.Unix()}
	event.SetPriorState(item.State())

	unstamped := next
	unstamped.UpdatedTs = 0
	_, err = ts.ApplyReview(ctx, &store.ApplyReview{ExpectedVersion: item.Version, Item: &unstamped, Event: event})
	require.Error(t, err)

	updated, err := ts.ApplyReview(ctx, &store.ApplyReview{ExpectedVersion: item.Version, Item: &next, Event: event})
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)
	require.Equal(t, 3, updated.IntervalDays)
	require.Equal(t, 1, updated.Repetitions)
	require.InDelta(t, 2.6, updated.Strength, 1e-9)
	require.Equal(t, day0.AddDate(0, 0, 3).Unix(), updated.DueTs)
	require.NotNil(t, updated.LastReviewedTs)
	require.Equal(t, 1, updated.TotalReviews)
	require.NotZero(t, event.ID)
	require.Equal(t, item.ID, event.ItemID)

	// Stale version is rejected and leaves the item untouched.
	stale := next
	stale.Repetitions = 99
	_, err = ts.ApplyReview(ctx, &store.ApplyReview{
		ExpectedVersion: item.Version,
		Item:            &stale,
		Event:           &store.ReviewEvent{Grade: 1, OccurredTs: day0.Unix()},
	})
	require.ErrorIs(t, err, store.ErrVersionConflict)

	current, err := ts.GetReviewItem(ctx, &store.FindReviewItem{ID: &item.ID})
	require.NoError(t, err)
	require.Equal(t, 1, current.Repetitions)
	require.Equal(t, int64(2), current.Version)

	events, err := ts.ListReviewEvents(ctx, &store.FindReviewEvent{ItemID: &item.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 5, events[0].Grade)
	require.Equal(t, int64(1200), events[0].ResponseLatencyMs)
	require.Equal(t, day0.Unix(), updated.UpdatedTs)

	prior, ok := events[0].PriorState()
	require.True(t, ok)
	require.Equal(t, review.DefaultStrength, prior.Strength)
	require.Equal(t, 1, prior.IntervalDays)
	require.Nil(t, prior.LastReviewedAt)
}

func TestReviewItemListDue(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	dues := []time.Time{
		day0.Add(-48 * time.Hour),
		day0.Add(time.Hour),
		day0.Add(-time.Hour),
		day0,
	}
	for i, due := range dues {
		_, _, err := ts.GetOrCreateReviewItem(ctx, 1, string(rune('a'+i)), newItemState(due))
		require.NoError(t, err)
	}
	_, _, err := ts.GetOrCreateReviewItem(ctx, 2, "other", newItemState(day0.Add(-72*time.Hour)))
	require.NoError(t, err)

	owner := int32(1)
	nowTs := day0.Unix()
	find := &store.FindReviewItem{OwnerID: &owner, DueBeforeTs: &nowTs, OrderByDue: true}
	list, err := ts.ListReviewItems(ctx, find)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "a", list[0].ContentRef)
	require.Equal(t, "c", list[1].ContentRef)
	require.Equal(t, "d", list[2].ContentRef)

	count, err := ts.CountReviewItems(ctx, find)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	owners, err := ts.ListReviewOwners(ctx)
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2}, owners)
}

func TestReviewItemDeleteRemovesHistory(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	item, _, err := ts.GetOrCreateReviewItem(ctx, 1, "card:gone", newItemState(day0))
	require.NoError(t, err)
	next := *item
	next.TotalReviews = 1
	_, err = ts.ApplyReview(ctx, &store.ApplyReview{
		ExpectedVersion: item.Version,
		Item:            &next,
		Event:           &store.ReviewEvent{Grade: 4, OccurredTs: day0.Unix()},
	})
	require.NoError(t, err)

	require.NoError(t, ts.DeleteReviewItem(ctx, &store.DeleteReviewItem{ID: item.ID}))

	got, err := ts.GetReviewItem(ctx, &store.FindReviewItem{ID: &item.ID})
	require.NoError(t, err)
	require.Nil(t, got)
	events, err := ts.ListReviewEvents(ctx, &store.FindReviewEvent{ItemID: &item.ID})
	require.NoError(t, err)
	require.Empty(t, events)

	require.Error(t, ts.DeleteReviewItem(ctx, &store.DeleteReviewItem{ID: item.ID}))
}
