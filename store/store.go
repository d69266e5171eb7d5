package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// snapshotCache holds group snapshots and retention profiles.
	snapshotCache *cache.TieredCache
}

// New creates a new instance of Store with an L1-only cache, or L1+Redis when the
// profile configures a Redis address.
func New(driver Driver, profile *profile.Profile) (*Store, error) {
	config := cache.DefaultTieredConfig()
	if profile != nil && profile.CacheRedisAddr != "" {
		redisConfig := cache.DefaultRedisConfig()
		redisConfig.Addr = profile.CacheRedisAddr
		redisConfig.Password = profile.CacheRedisPassword
		redisConfig.DB = profile.CacheRedisDB
		config.Redis = redisConfig
	}
	tc, err := cache.NewTieredCache(config)
	if err != nil {
		return nil, err
	}
	return NewWithCache(driver, profile, tc), nil
}

// NewWithCache creates a Store over an existing cache.
func NewWithCache(driver Driver, profile *profile.Profile, tc *cache.TieredCache) *Store {
	return &Store{
		driver:        driver,
		profile:       profile,
		snapshotCache: tc,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// CacheStats reports the snapshot cache state.
func (s *Store) CacheStats() map[string]any {
	return s.snapshotCache.Stats()
}

func (s *Store) Close() error {
	if err := s.snapshotCache.Close(); err != nil {
		return errors.Wrap(err, "failed to close cache")
	}
	return s.driver.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.GetDB().PingContext(ctx)
}

func groupCacheKey(id int32) string {
	return fmt.Sprintf("group:%d", id)
}

func retentionCacheKey(ownerID int32) string {
	return fmt.Sprintf("retention:%d", ownerID)
}

// GetOrCreateReviewItem returns the owner's item for contentRef, creating it with the
// state produced by init when missing. Concurrent callers end up with the same row.
func (s *Store) GetOrCreateReviewItem(ctx context.Context, ownerID int32, contentRef string, init func(*ReviewItem)) (*ReviewItem, bool, error) {
	find := &FindReviewItem{OwnerID: &ownerID, ContentRef: &contentRef}
	existing, err := s.GetReviewItem(ctx, find)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	create := &ReviewItem{
		UID:        shortuuid.New(),
		OwnerID:    ownerID,
		ContentRef: contentRef,
	}
	init(create)
	item, err := s.driver.CreateReviewItem(ctx, create)
	if err == nil {
		return item, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	// Lost the race against another creator; read the winner.
	existing, err = s.GetReviewItem(ctx, find)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.Errorf("review item for owner %d and %q vanished after conflict", ownerID, contentRef)
	}
	return existing, false, nil
}

func (s *Store) ListReviewItems(ctx context.Context, find *FindReviewItem) ([]*ReviewItem, error) {
	return s.driver.ListReviewItems(ctx, find)
}

// GetReviewItem returns the first matching item or nil.
func (s *Store) GetReviewItem(ctx context.Context, find *FindReviewItem) (*ReviewItem, error) {
	limit := 1
	find.Limit = &limit
	list, err := s.driver.ListReviewItems(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) CountReviewItems(ctx context.Context, find *FindReviewItem) (int, error) {
	return s.driver.CountReviewItems(ctx, find)
}

func (s *Store) UpdateReviewItem(ctx context.Context, update *UpdateReviewItem) (*ReviewItem, error) {
	return s.driver.UpdateReviewItem(ctx, update)
}

// ApplyReview writes a review transactionally. It returns ErrVersionConflict when the
// item changed since it was read.
func (s *Store) ApplyReview(ctx context.Context, apply *ApplyReview) (*ReviewItem, error) {
	if apply.Item == nil || apply.Event == nil {
		return nil, errors.New("apply review requires an item and an event")
	}
	if apply.Item.UpdatedTs == 0 {
		return nil, errors.New("apply review requires an update timestamp")
	}
	return s.driver.ApplyReview(ctx, apply)
}

func (s *Store) DeleteReviewItem(ctx context.Context, delete *DeleteReviewItem) error {
	return s.driver.DeleteReviewItem(ctx, delete)
}

func (s *Store) ListReviewOwners(ctx context.Context) ([]int32, error) {
	return s.driver.ListReviewOwners(ctx)
}

func (s *Store) ListReviewEvents(ctx context.Context, find *FindReviewEvent) ([]*ReviewEvent, error) {
	return s.driver.ListReviewEvents(ctx, find)
}

func (s *Store) CreateGroup(ctx context.Context, create *Group) (*Group, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	return s.driver.CreateGroup(ctx, create)
}

func (s *Store) ListGroups(ctx context.Context, find *FindGroup) ([]*Group, error) {
	return s.driver.ListGroups(ctx, find)
}

// GetGroup returns the group or nil.
func (s *Store) GetGroup(ctx context.Context, find *FindGroup) (*Group, error) {
	list, err := s.driver.ListGroups(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// GetGroupSnapshot returns the cached snapshot of a group, or nil if it has never
// been computed.
func (s *Store) GetGroupSnapshot(ctx context.Context, groupID int32) (*GroupSnapshot, error) {
	return cache.Get(ctx, s.snapshotCache, groupCacheKey(groupID), func(ctx context.Context) (*GroupSnapshot, error) {
		group, err := s.GetGroup(ctx, &FindGroup{ID: &groupID})
		if err != nil || group == nil {
			return nil, err
		}
		return group.Snapshot, nil
	})
}

func (s *Store) UpdateGroup(ctx context.Context, update *UpdateGroup) (*Group, error) {
	group, err := s.driver.UpdateGroup(ctx, update)
	if err != nil {
		return nil, err
	}
	if group.Snapshot != nil {
		s.snapshotCache.Set(ctx, groupCacheKey(group.ID), group.Snapshot)
	}
	return group, nil
}

func (s *Store) DeleteGroup(ctx context.Context, delete *DeleteGroup) error {
	if err := s.driver.DeleteGroup(ctx, delete); err != nil {
		return err
	}
	s.snapshotCache.Delete(ctx, groupCacheKey(delete.ID))
	return nil
}

func (s *Store) UpsertUserStatistics(ctx context.Context, upsert *UserStatistics) (*UserStatistics, error) {
	return s.driver.UpsertUserStatistics(ctx, upsert)
}

func (s *Store) ListUserStatistics(ctx context.Context, find *FindUserStatistics) ([]*UserStatistics, error) {
	return s.driver.ListUserStatistics(ctx, find)
}

func (s *Store) UpsertRetentionProfile(ctx context.Context, upsert *RetentionProfile) (*RetentionProfile, error) {
	profile, err := s.driver.UpsertRetentionProfile(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.snapshotCache.Set(ctx, retentionCacheKey(profile.OwnerID), profile)
	return profile, nil
}

// GetRetentionProfile returns the owner's profile or nil when none has been written.
func (s *Store) GetRetentionProfile(ctx context.Context, ownerID int32) (*RetentionProfile, error) {
	return cache.Get(ctx, s.snapshotCache, retentionCacheKey(ownerID), func(ctx context.Context) (*RetentionProfile, error) {
		return s.driver.GetRetentionProfile(ctx, &FindRetentionProfile{OwnerID: &ownerID})
	})
}
