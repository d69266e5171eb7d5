package store

import (
	"time"

	"github.com/hrygo/recall/plugin/review"
)

// ReviewEvent is one immutable graded review of an item.
type ReviewEvent struct {
	ID                int32
	ItemID            int32
	OwnerID           int32
	Grade             int
	ResponseLatencyMs int64
	OccurredTs        int64

	// Scheduling state the grade was applied to. PriorIntervalDays is zero on
	// events written before it was recorded, and PriorReviewedTs is nil for an
	// item's first review.
	PriorStrength     float64
	PriorIntervalDays int
	PriorReviewedTs   *int64
}

// SetPriorState records the state the review was applied to.
func (e *ReviewEvent) SetPriorState(s review.State) {
	e.PriorStrength = s.Strength
	e.PriorIntervalDays = s.IntervalDays
	e.PriorReviewedTs = nil
	if s.LastReviewedAt != nil {
		ts := s.LastReviewedAt.Unix()
		e.PriorReviewedTs = &ts
	}
}

// PriorState returns the recorded state the review was applied to. ok is false
// when the event carries none.
func (e *ReviewEvent) PriorState() (review.State, bool) {
	if e.PriorIntervalDays <= 0 {
		return review.State{}, false
	}
	s := review.State{Strength: e.PriorStrength, IntervalDays: e.PriorIntervalDays}
	if e.PriorReviewedTs != nil {
		t := time.Unix(*e.PriorReviewedTs, 0).UTC()
		s.LastReviewedAt = &t
	}
	return s, true
}

// FindReviewEvent specifies the conditions for finding review events.
// Results are ordered by item_id, occurred_ts, id.
type FindReviewEvent struct {
	ItemID         *int32
	OwnerID        *int32
	OccurredFromTs *int64
	Limit          *int
}
