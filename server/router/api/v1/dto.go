package v1

import (
	"time"

	srs "github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/server/service/review"
	"github.com/hrygo/recall/store"
)

type ItemResponse struct {
	ID             int32      `json:"id"`
	UID            string     `json:"uid"`
	ContentRef     string     `json:"content_ref"`
	GroupID        *int32     `json:"group_id,omitempty"`
	Strength       float64    `json:"strength"`
	IntervalDays   int        `json:"interval_days"`
	Repetitions    int        `json:"repetitions"`
	DueAt          time.Time  `json:"due_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	TotalReviews   int        `json:"total_reviews"`
	CorrectReviews int        `json:"correct_reviews"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
}

func convertItem(item *store.ReviewItem) *ItemResponse {
	resp := &ItemResponse{
		ID:             item.ID,
		UID:            item.UID,
		ContentRef:     item.ContentRef,
		GroupID:        item.GroupID,
		Strength:       item.Strength,
		IntervalDays:   item.IntervalDays,
		Repetitions:    item.Repetitions,
		DueAt:          time.Unix(item.DueTs, 0).UTC(),
		TotalReviews:   item.TotalReviews,
		CorrectReviews: item.CorrectReviews,
		Version:        item.Version,
		CreatedAt:      time.Unix(item.CreatedTs, 0).UTC(),
	}
	if item.LastReviewedTs != nil {
		t := time.Unix(*item.LastReviewedTs, 0).UTC()
		resp.LastReviewedAt = &t
	}
	return resp
}

func convertItems(items []*store.ReviewItem) []*ItemResponse {
	result := make([]*ItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, convertItem(item))
	}
	return result
}

type EventResponse struct {
	ID                int32     `json:"id"`
	ItemID            int32     `json:"item_id"`
	Grade             int       `json:"grade"`
	ResponseLatencyMs int64     `json:"response_latency_ms"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func convertEvent(event *store.ReviewEvent) *EventResponse {
	return &EventResponse{
		ID:                event.ID,
		ItemID:            event.ItemID,
		Grade:             event.Grade,
		ResponseLatencyMs: event.ResponseLatencyMs,
		OccurredAt:        time.Unix(event.OccurredTs, 0).UTC(),
	}
}

type CreateItemRequest struct {
	ContentRef string `json:"content_ref"`
}

type CreateItemResponse struct {
	Item    *ItemResponse `json:"item"`
	Created bool          `json:"created"`
}

type SubmitReviewRequest struct {
	// Grade is a pointer so that a missing grade is rejected instead of read as 0.
	Grade             *int   `json:"grade"`
	ResponseLatencyMs int64  `json:"response_latency_ms"`
	ExpectedVersion   *int64 `json:"expected_version,omitempty"`
}

type SubmitReviewResponse struct {
	Item     *ItemResponse  `json:"item"`
	Event    *EventResponse `json:"event"`
	Clamps   []srs.Clamp    `json:"clamps,omitempty"`
	Attempts int            `json:"attempts"`
}

type PreviewResponse struct {
	Outcomes map[srs.Grade]srs.Outcome `json:"outcomes"`
}

type DueQueueResponse struct {
	Items    []*ItemResponse `json:"items"`
	TotalDue int             `json:"total_due"`
	CaughtUp bool            `json:"caught_up"`
	AsOf     time.Time       `json:"as_of"`
}

func convertDueQueue(queue *review.DueQueue) *DueQueueResponse {
	return &DueQueueResponse{
		Items:    convertItems(queue.Items),
		TotalDue: queue.TotalDue,
		CaughtUp: queue.CaughtUp,
		AsOf:     queue.AsOf.UTC(),
	}
}

type WorkloadResponse struct {
	StartDay string `json:"start_day"`
	Counts   []int  `json:"counts"`
	Overdue  int    `json:"overdue"`
	Total    int    `json:"total"`
}

type CreateGroupRequest struct {
	Name string `json:"name"`
}

type GroupResponse struct {
	ID        int32     `json:"id"`
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func convertGroup(group *store.Group) *GroupResponse {
	return &GroupResponse{
		ID:        group.ID,
		UID:       group.UID,
		Name:      group.Name,
		CreatedAt: time.Unix(group.CreatedTs, 0).UTC(),
	}
}
