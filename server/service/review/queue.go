package review

import (
	"context"
	"time"

	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/store"
)

// MaxQueueLimit bounds a single due-queue page.
const MaxQueueLimit = 1000

// GetDueItems returns the due queue at the current clock reading.
func (s *service) GetDueItems(ctx context.Context, ownerID int32, limit int) (*DueQueue, error) {
	return s.DueItems(ctx, ownerID, limit, s.now())
}

// DueItems selects items with dueAt <= now, most overdue first, ties by id.
// It never mutates state.
func (s *service) DueItems(ctx context.Context, ownerID int32, limit int, now time.Time) (*DueQueue, error) {
	if limit <= 0 {
		return nil, errors.InvalidArgument("limit must be positive").WithContext("limit", limit)
	}
	if limit > MaxQueueLimit {
		limit = MaxQueueLimit
	}

	nowTs := now.Unix()
	find := &store.FindReviewItem{
		OwnerID:     &ownerID,
		DueBeforeTs: &nowTs,
		OrderByDue:  true,
		Limit:       &limit,
	}
	list, err := s.store.ListReviewItems(ctx, find)
	if err != nil {
		return nil, errors.Internal("failed to list due items", err)
	}

	items := make([]*store.ReviewItem, 0, len(list))
	for _, item := range list {
		// The store filters already; this keeps the guarantee independent of the driver.
		if item.DueTs > nowTs {
			continue
		}
		items = append(items, item)
	}

	total, err := s.store.CountReviewItems(ctx, &store.FindReviewItem{
		OwnerID:     &ownerID,
		DueBeforeTs: &nowTs,
	})
	if err != nil {
		return nil, errors.Internal("failed to count due items", err)
	}
	if total < len(items) {
		total = len(items)
	}

	return &DueQueue{
		Items:    items,
		TotalDue: total,
		CaughtUp: len(items) < limit,
		AsOf:     now,
	}, nil
}
