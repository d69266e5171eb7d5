package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hrygo/recall/store"
)

func (d *DB) UpsertRetentionProfile(ctx context.Context, upsert *store.RetentionProfile) (*store.RetentionProfile, error) {
	stmt := `INSERT INTO retention_profile (owner_id, target_retention, sample_size, last_optimized_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (owner_id) DO UPDATE SET
			target_retention = EXCLUDED.target_retention,
			sample_size = EXCLUDED.sample_size,
			last_optimized_ts = EXCLUDED.last_optimized_ts
		RETURNING owner_id, target_retention, sample_size, last_optimized_ts`

	result := &store.RetentionProfile{}
	err := d.db.QueryRowContext(ctx, stmt, upsert.OwnerID, upsert.TargetRetention, upsert.SampleSize, upsert.LastOptimizedTs).Scan(
		&result.OwnerID,
		&result.TargetRetention,
		&result.SampleSize,
		&result.LastOptimizedTs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert retention_profile: %w", err)
	}
	return result, nil
}

func (d *DB) GetRetentionProfile(ctx context.Context, find *store.FindRetentionProfile) (*store.RetentionProfile, error) {
	if find.OwnerID == nil {
		return nil, fmt.Errorf("owner_id is required")
	}

	query := `SELECT owner_id, target_retention, sample_size, last_optimized_ts
		FROM retention_profile WHERE owner_id = ` + placeholder(1)

	result := &store.RetentionProfile{}
	err := d.db.QueryRowContext(ctx, query, *find.OwnerID).Scan(
		&result.OwnerID,
		&result.TargetRetention,
		&result.SampleSize,
		&result.LastOptimizedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get retention_profile: %w", err)
	}
	return result, nil
}
