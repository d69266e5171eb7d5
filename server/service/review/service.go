// Package review provides the review workflow: grading items, reading the due
// queue, projecting workload and managing group membership.
//
// Key features:
//   - Optimistic concurrency on every submission (conditional write on the item version)
//   - Bounded retries with exponential backoff for server-side races
//   - Per-user target retention fed back from the retention optimizer
//
// All time comes from an injected clock.
package review

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/recall/internal/clock"
	"github.com/hrygo/recall/internal/profile"
	srs "github.com/hrygo/recall/plugin/review"
	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/internal/observability"
	"github.com/hrygo/recall/store"
)

const (
	// DefaultMaxRetries is the number of retries after a version conflict.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the first retry delay. It doubles on each attempt.
	DefaultRetryBackoff = 25 * time.Millisecond

	// MaxContentRefLength bounds the opaque content reference.
	MaxContentRefLength = 512

	// MaxGroupNameLength bounds group names.
	MaxGroupNameLength = 256
)

// Config holds service settings.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// Location is the timezone of calendar days. Nil means UTC.
	Location *time.Location
	// Metrics defaults to the global collector.
	Metrics *observability.Metrics
}

// ConfigFromProfile builds a Config from the server profile.
func ConfigFromProfile(p *profile.Profile) Config {
	return Config{
		MaxRetries:   p.SubmitMaxRetries,
		RetryBackoff: DefaultRetryBackoff,
		Location:     p.Location(),
	}
}

type service struct {
	store        Store
	engine       *srs.Engine
	clock        clock.Clock
	location     *time.Location
	metrics      *observability.Metrics
	maxRetries   int
	retryBackoff time.Duration
}

// NewService creates a new review service.
func NewService(st Store, engine *srs.Engine, clk clock.Clock, cfg Config) Service {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.GlobalMetrics()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &service{
		store:        st,
		engine:       engine,
		clock:        clk,
		location:     cfg.Location,
		metrics:      cfg.Metrics,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
	}
}

// now returns the clock reading truncated to the second, the resolution timestamps
// are stored at, so the state we compute is exactly the state we persist.
func (s *service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}

// SubmitReview grades an item and persists the advanced state together with the event.
func (s *service) SubmitReview(ctx context.Context, req *SubmitReviewRequest) (*SubmitReviewResult, error) {
	started := time.Now()
	result, err := s.submitReview(ctx, req)
	s.metrics.RecordSubmission(err != nil)
	s.metrics.RecordOperation("review.submit", time.Since(started), err)
	return result, err
}

func (s *service) submitReview(ctx context.Context, req *SubmitReviewRequest) (*SubmitReviewResult, error) {
	if req == nil {
		return nil, errors.InvalidArgument("missing review request")
	}
	grade := srs.Grade(req.Grade)
	if !grade.IsValid() {
		return nil, errors.InvalidGrade(req.Grade)
	}
	if req.ResponseLatencyMs < 0 {
		return nil, errors.InvalidArgument("response latency must not be negative").WithContext("response_latency_ms", req.ResponseLatencyMs)
	}

	logger := observability.LoggerFromContext(ctx, "submit_review").With(
		observability.LogFieldOwnerID, req.OwnerID,
		observability.LogFieldItemID, req.ItemID,
	)
	engine := s.engineFor(ctx, req.OwnerID, logger)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.ContextCanceled(err)
		}

		item, err := s.ownedItem(ctx, req.OwnerID, req.ItemID)
		if err != nil {
			return nil, err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != item.Version {
			s.metrics.RecordConflict()
			return nil, errors.ConcurrentModification(item.ID, store.ErrVersionConflict).
				WithContext("expected_version", *req.ExpectedVersion).
				WithContext("current_version", item.Version)
		}

		now := s.now()
		outcome, err := engine.Advance(item.State(), grade, now)
		if err != nil {
			return nil, errors.FromError(fmt.Errorf("advance item %d: %w", item.ID, err))
		}

		next := *item
		next.SetState(outcome.State)
		next.TotalReviews++
		if grade.IsPass() {
			next.CorrectReviews++
		}
		next.UpdatedTs = now.Unix()
		event := &store.ReviewEvent{
			ItemID:            item.ID,
			OwnerID:           item.OwnerID,
			Grade:             int(grade),
			ResponseLatencyMs: req.ResponseLatencyMs,
			OccurredTs:        now.Unix(),
		}
		event.SetPriorState(item.State())

		saved, err := s.store.ApplyReview(ctx, &store.ApplyReview{
			ExpectedVersion: item.Version,
			Item:            &next,
			Event:           event,
		})
		if err == nil {
			if overflow := outcome.Overflow(); overflow != nil {
				s.metrics.RecordOverflow()
				logger.Warn("scheduling value clamped",
					"error_code", errors.ErrCodeEngineOverflow,
					"grade", int(grade),
					"detail", overflow.Error(),
				)
			}
			return &SubmitReviewResult{
				Item:     saved,
				Event:    event,
				Clamps:   outcome.Clamps,
				Attempts: attempt + 1,
			}, nil
		}

		if !stderrors.Is(err, store.ErrVersionConflict) {
			if ctx.Err() != nil {
				return nil, errors.ContextCanceled(ctx.Err())
			}
			return nil, errors.Internal("failed to persist review", err)
		}

		s.metrics.RecordConflict()
		if req.ExpectedVersion != nil || attempt >= s.maxRetries {
			logger.Info("review submission lost a version race",
				observability.LogFieldAttempt, attempt+1,
				"version", item.Version,
			)
			return nil, errors.ConcurrentModification(item.ID, err).WithContext("attempts", attempt+1)
		}

		s.metrics.RecordRetry()
		delay := s.retryBackoff << attempt
		logger.Debug("retrying review after version conflict",
			observability.LogFieldAttempt, attempt+1,
			"delay", delay,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.ContextCanceled(ctx.Err())
		case <-timer.C:
		}
	}
}

// engineFor returns the engine tuned to the owner's optimized target retention.
// Profile lookups never block a submission: failures fall back to the default.
func (s *service) engineFor(ctx context.Context, ownerID int32, logger *slog.Logger) *srs.Engine {
	retentionProfile, err := s.store.GetRetentionProfile(ctx, ownerID)
	if err != nil {
		logger.Warn("failed to load retention profile, using default target", "error", err)
		return s.engine
	}
	if retentionProfile == nil || retentionProfile.TargetRetention == s.engine.Config().TargetRetention {
		return s.engine
	}
	tuned, err := s.engine.WithTargetRetention(retentionProfile.TargetRetention)
	if err != nil {
		logger.Warn("ignoring invalid target retention", "target", retentionProfile.TargetRetention, "error", err)
		return s.engine
	}
	return tuned
}

// ownedItem loads an item and checks ownership.
func (s *service) ownedItem(ctx context.Context, ownerID, itemID int32) (*store.ReviewItem, error) {
	item, err := s.store.GetReviewItem(ctx, &store.FindReviewItem{ID: &itemID})
	if err != nil {
		return nil, errors.Internal("failed to load review item", err)
	}
	if item == nil {
		return nil, errors.NotFound("review item", itemID)
	}
	if item.OwnerID != ownerID {
		return nil, errors.NotOwner("review item", itemID)
	}
	return item, nil
}

// ownedGroup loads a group and checks ownership.
func (s *service) ownedGroup(ctx context.Context, ownerID, groupID int32) (*store.Group, error) {
	group, err := s.store.GetGroup(ctx, &store.FindGroup{ID: &groupID})
	if err != nil {
		return nil, errors.Internal("failed to load group", err)
	}
	if group == nil {
		return nil, errors.NotFound("group", groupID)
	}
	if group.OwnerID != ownerID {
		return nil, errors.NotOwner("group", groupID)
	}
	return group, nil
}

// PreviewReview returns the outcome of every grade for the item's current state.
func (s *service) PreviewReview(ctx context.Context, ownerID, itemID int32) (map[srs.Grade]srs.Outcome, error) {
	item, err := s.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	logger := observability.LoggerFromContext(ctx, "preview_review")
	preview, err := s.engineFor(ctx, ownerID, logger).Preview(item.State(), s.now())
	if err != nil {
		return nil, errors.FromError(err)
	}
	return preview, nil
}

// GetOrCreateItem returns the owner's item for contentRef. New items are due immediately.
func (s *service) GetOrCreateItem(ctx context.Context, ownerID int32, contentRef string) (*store.ReviewItem, bool, error) {
	contentRef = strings.TrimSpace(contentRef)
	if contentRef == "" {
		return nil, false, errors.InvalidArgument("content reference is required")
	}
	if len(contentRef) > MaxContentRefLength {
		return nil, false, errors.InvalidArgument(fmt.Sprintf("content reference exceeds %d bytes", MaxContentRefLength))
	}

	now := s.now()
	item, created, err := s.store.GetOrCreateReviewItem(ctx, ownerID, contentRef, func(item *store.ReviewItem) {
		item.SetState(srs.NewState(now))
		item.CreatedTs = now.Unix()
		item.UpdatedTs = now.Unix()
	})
	if err != nil {
		return nil, false, errors.Internal("failed to get or create review item", err)
	}
	if created {
		slog.Debug("review item created",
			observability.LogFieldOwnerID, ownerID,
			observability.LogFieldItemID, item.ID,
			"content_ref", contentRef,
		)
	}
	return item, created, nil
}

func (s *service) GetItem(ctx context.Context, ownerID, itemID int32) (*store.ReviewItem, error) {
	return s.ownedItem(ctx, ownerID, itemID)
}

// DeleteItem removes the item and its history.
func (s *service) DeleteItem(ctx context.Context, ownerID, itemID int32) error {
	if _, err := s.ownedItem(ctx, ownerID, itemID); err != nil {
		return err
	}
	if err := s.store.DeleteReviewItem(ctx, &store.DeleteReviewItem{ID: itemID}); err != nil {
		return errors.Internal("failed to delete review item", err)
	}
	return nil
}

// ListHistory returns the events of an item, oldest first.
func (s *service) ListHistory(ctx context.Context, ownerID, itemID int32) ([]*store.ReviewEvent, error) {
	if _, err := s.ownedItem(ctx, ownerID, itemID); err != nil {
		return nil, err
	}
	events, err := s.store.ListReviewEvents(ctx, &store.FindReviewEvent{ItemID: &itemID})
	if err != nil {
		return nil, errors.Internal("failed to list review events", err)
	}
	return events, nil
}

func (s *service) CreateGroup(ctx context.Context, ownerID int32, name string) (*store.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.InvalidArgument("group name is required")
	}
	if len(name) > MaxGroupNameLength {
		return nil, errors.InvalidArgument(fmt.Sprintf("group name exceeds %d bytes", MaxGroupNameLength))
	}
	now := s.now().Unix()
	group, err := s.store.CreateGroup(ctx, &store.Group{
		OwnerID:   ownerID,
		Name:      name,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, errors.Internal("failed to create group", err)
	}
	return group, nil
}

func (s *service) AddToGroup(ctx context.Context, ownerID, groupID, itemID int32) (*store.ReviewItem, error) {
	if _, err := s.ownedGroup(ctx, ownerID, groupID); err != nil {
		return nil, err
	}
	item, err := s.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if item.GroupID != nil && *item.GroupID == groupID {
		return item, nil
	}
	updated, err := s.store.UpdateReviewItem(ctx, &store.UpdateReviewItem{ID: itemID, GroupID: &groupID, UpdatedTs: s.now().Unix()})
	if err != nil {
		return nil, errors.Internal("failed to update group membership", err)
	}
	return updated, nil
}

func (s *service) RemoveFromGroup(ctx context.Context, ownerID, groupID, itemID int32) (*store.ReviewItem, error) {
	if _, err := s.ownedGroup(ctx, ownerID, groupID); err != nil {
		return nil, err
	}
	item, err := s.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if item.GroupID == nil || *item.GroupID != groupID {
		return nil, errors.NotFound(fmt.Sprintf("review item in group %d", groupID), itemID)
	}
	updated, err := s.store.UpdateReviewItem(ctx, &store.UpdateReviewItem{ID: itemID, ClearGroupID: true, UpdatedTs: s.now().Unix()})
	if err != nil {
		return nil, errors.Internal("failed to update group membership", err)
	}
	return updated, nil
}

func (s *service) DeleteGroup(ctx context.Context, ownerID, groupID int32, cascade bool) error {
	if _, err := s.ownedGroup(ctx, ownerID, groupID); err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, &store.DeleteGroup{ID: groupID, Cascade: cascade, UpdatedTs: s.now().Unix()}); err != nil {
		return errors.Internal("failed to delete group", err)
	}
	slog.Info("group deleted",
		observability.LogFieldOwnerID, ownerID,
		"group_id", groupID,
		"cascade", cascade,
	)
	return nil
}
