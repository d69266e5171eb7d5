package review

import (
	"context"
	"time"

	srs "github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/store"
)

// Service defines the review workflow on top of the scheduling engine.
// Every method checks that ownerID owns the resources it touches.
type Service interface {
	// SubmitReview grades an item, advances its schedule and appends the event.
	// Version conflicts are retried with fresh state unless the caller pinned a version.
	SubmitReview(ctx context.Context, req *SubmitReviewRequest) (*SubmitReviewResult, error)

	// PreviewReview returns the state each grade would produce, without writing.
	PreviewReview(ctx context.Context, ownerID, itemID int32) (map[srs.Grade]srs.Outcome, error)

	// GetDueItems returns the owner's due items, most overdue first.
	GetDueItems(ctx context.Context, ownerID int32, limit int) (*DueQueue, error)

	// GetWorkloadProjection counts due items per calendar day for the next horizonDays days.
	GetWorkloadProjection(ctx context.Context, ownerID int32, horizonDays int) (*WorkloadProjection, error)

	// GetOrCreateItem returns the owner's item for contentRef, creating it on first encounter.
	GetOrCreateItem(ctx context.Context, ownerID int32, contentRef string) (*store.ReviewItem, bool, error)

	// GetItem returns one item.
	GetItem(ctx context.Context, ownerID, itemID int32) (*store.ReviewItem, error)

	// DeleteItem removes an item and its history.
	DeleteItem(ctx context.Context, ownerID, itemID int32) error

	// ListHistory returns the review events of an item in the order they happened.
	ListHistory(ctx context.Context, ownerID, itemID int32) ([]*store.ReviewEvent, error)

	// CreateGroup creates an empty group.
	CreateGroup(ctx context.Context, ownerID int32, name string) (*store.Group, error)

	// AddToGroup makes the item a member of the group, moving it out of any previous group.
	AddToGroup(ctx context.Context, ownerID, groupID, itemID int32) (*store.ReviewItem, error)

	// RemoveFromGroup clears the item's membership. The item itself is kept.
	RemoveFromGroup(ctx context.Context, ownerID, groupID, itemID int32) (*store.ReviewItem, error)

	// DeleteGroup removes a group. Members are deleted only when cascade is set.
	DeleteGroup(ctx context.Context, ownerID, groupID int32, cascade bool) error
}

// Store is the interface for store operations needed by the review service.
type Store interface {
	GetOrCreateReviewItem(ctx context.Context, ownerID int32, contentRef string, init func(*store.ReviewItem)) (*store.ReviewItem, bool, error)
	GetReviewItem(ctx context.Context, find *store.FindReviewItem) (*store.ReviewItem, error)
	ListReviewItems(ctx context.Context, find *store.FindReviewItem) ([]*store.ReviewItem, error)
	CountReviewItems(ctx context.Context, find *store.FindReviewItem) (int, error)
	UpdateReviewItem(ctx context.Context, update *store.UpdateReviewItem) (*store.ReviewItem, error)
	ApplyReview(ctx context.Context, apply *store.ApplyReview) (*store.ReviewItem, error)
	DeleteReviewItem(ctx context.Context, delete *store.DeleteReviewItem) error
	ListReviewEvents(ctx context.Context, find *store.FindReviewEvent) ([]*store.ReviewEvent, error)
	CreateGroup(ctx context.Context, create *store.Group) (*store.Group, error)
	GetGroup(ctx context.Context, find *store.FindGroup) (*store.Group, error)
	DeleteGroup(ctx context.Context, delete *store.DeleteGroup) error
	GetRetentionProfile(ctx context.Context, ownerID int32) (*store.RetentionProfile, error)
}

// SubmitReviewRequest represents one graded review.
type SubmitReviewRequest struct {
	ItemID            int32
	OwnerID           int32
	Grade             int
	ResponseLatencyMs int64
	// ExpectedVersion pins the version the caller graded against. When set, a
	// mismatch fails immediately instead of being retried.
	ExpectedVersion *int64
}

// SubmitReviewResult is the persisted item plus any clamp applied by the engine.
type SubmitReviewResult struct {
	Item  *store.ReviewItem
	Event *store.ReviewEvent
	// Clamps is non-empty when strength hit its floor or the interval hit its cap.
	Clamps   []srs.Clamp
	Attempts int
}

// DueQueue is a capped page of due items.
type DueQueue struct {
	Items    []*store.ReviewItem
	TotalDue int
	// CaughtUp is set when fewer than limit items were due.
	CaughtUp bool
	AsOf     time.Time
}

// WorkloadProjection holds due counts per calendar day. Counts[0] is today and
// includes overdue items.
type WorkloadProjection struct {
	StartDay string
	Counts   []int
	Overdue  int
}

// Total returns the number of items due within the horizon.
func (w *WorkloadProjection) Total() int {
	total := 0
	for _, c := range w.Counts {
		total += c
	}
	return total
}
