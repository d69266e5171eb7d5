package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// SystemSetting model related methods.
	GetSystemSetting(ctx context.Context, name string) (string, error)
	UpsertSystemSetting(ctx context.Context, name, value string) error

	// ReviewItem model related methods.
	// CreateReviewItem returns sql.ErrNoRows when (owner_id, content_ref) already exists.
	CreateReviewItem(ctx context.Context, create *ReviewItem) (*ReviewItem, error)
	ListReviewItems(ctx context.Context, find *FindReviewItem) ([]*ReviewItem, error)
	CountReviewItems(ctx context.Context, find *FindReviewItem) (int, error)
	UpdateReviewItem(ctx context.Context, update *UpdateReviewItem) (*ReviewItem, error)
	ApplyReview(ctx context.Context, apply *ApplyReview) (*ReviewItem, error)
	DeleteReviewItem(ctx context.Context, delete *DeleteReviewItem) error
	ListReviewOwners(ctx context.Context) ([]int32, error)

	// ReviewEvent model related methods.
	ListReviewEvents(ctx context.Context, find *FindReviewEvent) ([]*ReviewEvent, error)

	// Group model related methods.
	CreateGroup(ctx context.Context, create *Group) (*Group, error)
	ListGroups(ctx context.Context, find *FindGroup) ([]*Group, error)
	UpdateGroup(ctx context.Context, update *UpdateGroup) (*Group, error)
	DeleteGroup(ctx context.Context, delete *DeleteGroup) error

	// UserStatistics model related methods.
	UpsertUserStatistics(ctx context.Context, upsert *UserStatistics) (*UserStatistics, error)
	ListUserStatistics(ctx context.Context, find *FindUserStatistics) ([]*UserStatistics, error)

	// RetentionProfile model related methods.
	UpsertRetentionProfile(ctx context.Context, upsert *RetentionProfile) (*RetentionProfile, error)
	GetRetentionProfile(ctx context.Context, find *FindRetentionProfile) (*RetentionProfile, error)
}
