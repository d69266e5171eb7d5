package store

// Group is a user-owned collection of review items.
// Membership lives on ReviewItem.GroupID.
type Group struct {
	ID        int32
	UID       string
	OwnerID   int32
	Name      string
	CreatedTs int64
	UpdatedTs int64

	// Snapshot is nil until the aggregator has computed the group once.
	Snapshot *GroupSnapshot
}

// GroupSnapshot is the mastery distribution of a group at ComputedTs.
type GroupSnapshot struct {
	GroupID    int32 `json:"group_id"`
	Mastered   int   `json:"mastered"`
	Learning   int   `json:"learning"`
	New        int   `json:"new"`
	Total      int   `json:"total"`
	ComputedTs int64 `json:"computed_ts"`
}

type FindGroup struct {
	ID      *int32
	UID     *string
	OwnerID *int32
}

// UpdateGroup changes a group. updated_ts is written only when UpdatedTs is set,
// so snapshot refreshes leave it alone.
type UpdateGroup struct {
	ID        int32
	UpdatedTs int64
	Name      *string
	Snapshot  *GroupSnapshot
}

// DeleteGroup removes a group. With Cascade the member items and their history are
// deleted too; otherwise members only lose their membership, stamped with UpdatedTs.
type DeleteGroup struct {
	ID        int32
	Cascade   bool
	UpdatedTs int64
}
