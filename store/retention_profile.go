package store

// RetentionProfile holds the optimized target retention for one user.
// A missing profile means the engine default applies.
type RetentionProfile struct {
	OwnerID         int32   `json:"owner_id"`
	TargetRetention float64 `json:"target_retention"`
	SampleSize      int     `json:"sample_size"`
	LastOptimizedTs int64   `json:"last_optimized_ts"`
}

// FindRetentionProfile specifies the conditions for finding a retention profile.
type FindRetentionProfile struct {
	OwnerID *int32
}
