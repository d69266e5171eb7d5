package store

import (
	"errors"
	"time"

	"github.com/hrygo/recall/plugin/review"
)

var (
	// ErrVersionConflict is returned when a conditional write finds a different version.
	ErrVersionConflict = errors.New("store: version conflict")
)

// ReviewItem is one scheduled unit owned by a single user.
// Timestamps are unix seconds.
type ReviewItem struct {
	ID         int32
	UID        string
	OwnerID    int32
	ContentRef string
	GroupID    *int32

	// Scheduling state.
	Strength       float64
	IntervalDays   int
	Repetitions    int
	DueTs          int64
	LastReviewedTs *int64

	TotalReviews   int
	CorrectReviews int

	// Version guards the scheduling state and changes only when a review is applied.
	Version   int64
	CreatedTs int64
	UpdatedTs int64
}

// State returns the scheduling state of the item.
func (i *ReviewItem) State() review.State {
	s := review.State{
		Strength:     i.Strength,
		IntervalDays: i.IntervalDays,
		Repetitions:  i.Repetitions,
		DueAt:        time.Unix(i.DueTs, 0).UTC(),
	}
	if i.LastReviewedTs != nil {
		t := time.Unix(*i.LastReviewedTs, 0).UTC()
		s.LastReviewedAt = &t
	}
	return s
}

// SetState copies s into the item's scheduling columns.
func (i *ReviewItem) SetState(s review.State) {
	i.Strength = s.Strength
	i.IntervalDays = s.IntervalDays
	i.Repetitions = s.Repetitions
	i.DueTs = s.DueAt.Unix()
	i.LastReviewedTs = nil
	if s.LastReviewedAt != nil {
		ts := s.LastReviewedAt.Unix()
		i.LastReviewedTs = &ts
	}
}

// FindReviewItem specifies the conditions for finding review items.
type FindReviewItem struct {
	ID         *int32
	UID        *string
	OwnerID    *int32
	ContentRef *string
	GroupID    *int32

	// DueBeforeTs matches items with due_ts <= the value.
	DueBeforeTs *int64

	// OrderByDue orders by due_ts ascending then id ascending.
	// The default order is id ascending.
	OrderByDue bool
	Limit      *int
	Offset     *int
}

// UpdateReviewItem changes group membership. It does not touch scheduling state,
// so the version is left as is.
type UpdateReviewItem struct {
	ID        int32
	UpdatedTs int64

	GroupID      *int32
	ClearGroupID bool
}

// ApplyReview persists a graded review: the item's new scheduling state and counters
// are written only if the stored version still equals ExpectedVersion, and the event
// is appended in the same transaction.
type ApplyReview struct {
	ExpectedVersion int64
	// Item carries the new state. Its ID selects the row.
	Item  *ReviewItem
	Event *ReviewEvent
}

// DeleteReviewItem removes an item and its history.
type DeleteReviewItem struct {
	ID int32
}
