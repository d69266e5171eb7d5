package store

// UserStatistics is the per-user snapshot written by the aggregator.
type UserStatistics struct {
	OwnerID        int32 `json:"owner_id"`
	Mastered       int   `json:"mastered"`
	Learning       int   `json:"learning"`
	New            int   `json:"new"`
	Total          int   `json:"total"`
	DueNow         int   `json:"due_now"`
	TotalReviews   int   `json:"total_reviews"`
	CorrectReviews int   `json:"correct_reviews"`
	ComputedTs     int64 `json:"computed_ts"`
}

// FindUserStatistics specifies the conditions for finding user statistics.
type FindUserStatistics struct {
	OwnerID *int32
}
