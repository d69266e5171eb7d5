package review

import (
	"context"
	"time"

	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/timezone"
	"github.com/hrygo/recall/store"
)

// MaxHorizonDays is the longest workload projection.
const MaxHorizonDays = 366

// GetWorkloadProjection projects the owner's workload from the current clock reading.
func (s *service) GetWorkloadProjection(ctx context.Context, ownerID int32, horizonDays int) (*WorkloadProjection, error) {
	return s.ProjectWorkload(ctx, ownerID, horizonDays, s.now())
}

// ProjectWorkload buckets every item by the calendar day its dueAt falls on,
// relative to the day of now. Overdue items count toward day 0 and items due
// after the horizon are left out. Future review outcomes are not simulated.
func (s *service) ProjectWorkload(ctx context.Context, ownerID int32, horizonDays int, now time.Time) (*WorkloadProjection, error) {
	if horizonDays <= 0 || horizonDays > MaxHorizonDays {
		return nil, errors.InvalidArgument("horizon must be between 1 and 366 days").WithContext("horizon_days", horizonDays)
	}

	today := timezone.StartOfDay(now, s.location)
	// Last second of the final day in the horizon.
	endTs := today.AddDate(0, 0, horizonDays).Unix() - 1
	items, err := s.store.ListReviewItems(ctx, &store.FindReviewItem{
		OwnerID:     &ownerID,
		DueBeforeTs: &endTs,
	})
	if err != nil {
		return nil, errors.Internal("failed to list review items", err)
	}

	projection := &WorkloadProjection{
		StartDay: today.Format(timezone.DayLayout),
		Counts:   make([]int, horizonDays),
	}
	for _, item := range items {
		day := timezone.DaysBetween(now, time.Unix(item.DueTs, 0), s.location)
		if day < 0 {
			projection.Overdue++
			day = 0
		}
		if day >= horizonDays {
			continue
		}
		projection.Counts[day]++
	}
	return projection, nil
}
