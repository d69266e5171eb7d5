package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/store"
)

func createGroupWithItems(ctx context.Context, t *testing.T, ts *store.Store, refs ...string) (*store.Group, []*store.ReviewItem) {
	t.Helper()
	group, err := ts.CreateGroup(ctx, &store.Group{OwnerID: 1, Name: "verbs", CreatedTs: day0.Unix(), UpdatedTs: day0.Unix()})
	require.NoError(t, err)
	require.Equal(t, day0.Unix(), group.CreatedTs)
	require.Equal(t, day0.Unix(), group.UpdatedTs)
	require.NotEmpty(t, group.UID)
	require.Nil(t, group.Snapshot)

	items := make([]*store.ReviewItem, 0, len(refs))
	for _, ref := range refs {
		item, _, err := ts.GetOrCreateReviewItem(ctx, 1, ref, newItemState(day0))
		require.NoError(t, err)
		item, err = ts.UpdateReviewItem(ctx, &store.UpdateReviewItem{ID: item.ID, GroupID: &group.ID, UpdatedTs: day0.Add(time.Hour).Unix()})
		require.NoError(t, err)
		require.Equal(t, group.ID, *item.GroupID)
		require.Equal(t, int64(1), item.Version)
		require.Equal(t, day0.Add(time.Hour).Unix(), item.UpdatedTs)
		items = append(items, item)
	}
	return group, items
}

func TestGroupSnapshot(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	group, _ := createGroupWithItems(ctx, t, ts, "a", "b")

	snapshot, err := ts.GetGroupSnapshot(ctx, group.ID)
	require.NoError(t, err)
	require.Nil(t, snapshot)

	updated, err := ts.UpdateGroup(ctx, &store.UpdateGroup{
		ID:       group.ID,
		Snapshot: &store.GroupSnapshot{Mastered: 1, Learning: 1, Total: 2, ComputedTs: day0.Unix()},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Snapshot)

	snapshot, err = ts.GetGroupSnapshot(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Equal(t, 2, snapshot.Total)
	require.Equal(t, group.ID, snapshot.GroupID)
	require.Equal(t, day0.Unix(), snapshot.ComputedTs)
}

func TestGroupDeleteWithoutCascade(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	group, items := createGroupWithItems(ctx, t, ts, "a", "b")

	require.NoError(t, ts.DeleteGroup(ctx, &store.DeleteGroup{ID: group.ID, UpdatedTs: day0.AddDate(0, 0, 1).Unix()}))

	got, err := ts.GetGroup(ctx, &store.FindGroup{ID: &group.ID})
	require.NoError(t, err)
	require.Nil(t, got)

	for _, item := range items {
		current, err := ts.GetReviewItem(ctx, &store.FindReviewItem{ID: &item.ID})
		require.NoError(t, err)
		require.NotNil(t, current)
		require.Nil(t, current.GroupID)
		require.Equal(t, item.Version, current.Version)
		require.Equal(t, day0.AddDate(0, 0, 1).Unix(), current.UpdatedTs)
	}
}

func TestGroupDeleteWithCascade(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	group, items := createGroupWithItems(ctx, t, ts, "a", "b")
	outsider, _, err := ts.GetOrCreateReviewItem(ctx, 1, "loose", newItemState(day0))
	require.NoError(t, err)

	require.NoError(t, ts.DeleteGroup(ctx, &store.DeleteGroup{ID: group.ID, Cascade: true}))

	for _, item := range items {
		current, err := ts.GetReviewItem(ctx, &store.FindReviewItem{ID: &item.ID})
		require.NoError(t, err)
		require.Nil(t, current)
	}
	current, err := ts.GetReviewItem(ctx, &store.FindReviewItem{ID: &outsider.ID})
	require.NoError(t, err)
	require.NotNil(t, current)
}

func TestGroupMembershipClear(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	group, items := createGroupWithItems(ctx, t, ts, "a")

	item, err := ts.UpdateReviewItem(ctx, &store.UpdateReviewItem{ID: items[0].ID, ClearGroupID: true})
	require.NoError(t, err)
	require.Nil(t, item.GroupID)
	require.Equal(t, items[0].Version, item.Version)
	// Without a timestamp the stored one is kept.
	require.Equal(t, items[0].UpdatedTs, item.UpdatedTs)

	members, err := ts.ListReviewItems(ctx, &store.FindReviewItem{GroupID: &group.ID})
	require.NoError(t, err)
	require.Empty(t, members)
}
