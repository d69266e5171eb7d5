package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hrygo/recall/store"
)

const reviewItemColumns = `id, uid, owner_id, content_ref, group_id,
	strength, interval_days, repetitions, due_ts, last_reviewed_ts,
	total_reviews, correct_reviews, version, created_ts, updated_ts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReviewItem(row rowScanner) (*store.ReviewItem, error) {
	var item store.ReviewItem
	var groupID, lastReviewedTs sql.NullInt64
	if err := row.Scan(
		&item.ID,
		&item.UID,
		&item.OwnerID,
		&item.ContentRef,
		&groupID,
		&item.Strength,
		&item.IntervalDays,
		&item.Repetitions,
		&item.DueTs,
		&lastReviewedTs,
		&item.TotalReviews,
		&item.CorrectReviews,
		&item.Version,
		&item.CreatedTs,
		&item.UpdatedTs,
	); err != nil {
		return nil, err
	}
	if groupID.Valid {
		v := int32(groupID.Int64)
		item.GroupID = &v
	}
	if lastReviewedTs.Valid {
		item.LastReviewedTs = &lastReviewedTs.Int64
	}
	return &item, nil
}

func (d *DB) CreateReviewItem(ctx context.Context, create *store.ReviewItem) (*store.ReviewItem, error) {
	fields := []string{
		"uid", "owner_id", "content_ref", "group_id",
		"strength", "interval_days", "repetitions", "due_ts", "last_reviewed_ts",
	}
	placeholderValues := []any{
		create.UID, create.OwnerID, create.ContentRef, create.GroupID,
		create.Strength, create.IntervalDays, create.Repetitions, create.DueTs, create.LastReviewedTs,
	}

	// Add optional timestamps
	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}
	if create.UpdatedTs != 0 {
		fields = append(fields, "updated_ts")
		placeholderValues = append(placeholderValues, create.UpdatedTs)
	}

	stmt := `INSERT INTO review_item (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		ON CONFLICT (owner_id, content_ref) DO NOTHING
		RETURNING ` + reviewItemColumns

	item, err := scanReviewItem(d.db.QueryRowContext(ctx, stmt, placeholderValues...))
	if err != nil {
		return nil, fmt.Errorf("failed to create review item: %w", err)
	}
	return item, nil
}

func buildReviewItemWhere(find *store.FindReviewItem) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ContentRef; v != nil {
		where, args = append(where, "content_ref = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.GroupID; v != nil {
		where, args = append(where, "group_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.DueBeforeTs; v != nil {
		where, args = append(where, "due_ts <= "+placeholder(len(args)+1)), append(args, *v)
	}
	return where, args
}

func (d *DB) ListReviewItems(ctx context.Context, find *store.FindReviewItem) ([]*store.ReviewItem, error) {
	where, args := buildReviewItemWhere(find)

	orderBy := "ORDER BY id ASC"
	if find.OrderByDue {
		orderBy = "ORDER BY due_ts ASC, id ASC"
	}

	query := `SELECT ` + reviewItemColumns + `
		FROM review_item
		WHERE ` + strings.Join(where, " AND ") + ` ` + orderBy

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ReviewItem, 0)
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review items: %w", err)
	}
	return list, nil
}

func (d *DB) CountReviewItems(ctx context.Context, find *store.FindReviewItem) (int, error) {
	where, args := buildReviewItemWhere(find)
	var count int
	query := `SELECT COUNT(*) FROM review_item WHERE ` + strings.Join(where, " AND ")
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count review items: %w", err)
	}
	return count, nil
}

func (d *DB) UpdateReviewItem(ctx context.Context, update *store.UpdateReviewItem) (*store.ReviewItem, error) {
	set, args := []string{}, []any{}

	if v := update.UpdatedTs; v != 0 {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, v)
	}

	if update.ClearGroupID {
		set = append(set, "group_id = NULL")
	} else if v := update.GroupID; v != nil {
		set, args = append(set, "group_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		set = append(set, "updated_ts = updated_ts")
	}
	args = append(args, update.ID)
	stmt := `UPDATE review_item SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)) + `
		RETURNING ` + reviewItemColumns

	item, err := scanReviewItem(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update review item: %w", err)
	}
	return item, nil
}

func (d *DB) ApplyReview(ctx context.Context, apply *store.ApplyReview) (*store.ReviewItem, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next := apply.Item
	stmt := `UPDATE review_item SET
			strength = ?, interval_days = ?, repetitions = ?, due_ts = ?, last_reviewed_ts = ?,
			total_reviews = ?, correct_reviews = ?,
			version = version + 1, updated_ts = ?
		WHERE id = ? AND version = ?
		RETURNING ` + reviewItemColumns

	updated, err := scanReviewItem(tx.QueryRowContext(ctx, stmt,
		next.Strength, next.IntervalDays, next.Repetitions, next.DueTs, next.LastReviewedTs,
		next.TotalReviews, next.CorrectReviews,
		next.UpdatedTs,
		next.ID, apply.ExpectedVersion,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to update review item state: %w", err)
	}

	event := apply.Event
	event.ItemID = updated.ID
	event.OwnerID = updated.OwnerID
	var priorStrength, priorIntervalDays any
	if event.PriorIntervalDays > 0 {
		priorStrength, priorIntervalDays = event.PriorStrength, event.PriorIntervalDays
	}
	eventStmt := `INSERT INTO review_event (item_id, owner_id, grade, response_latency_ms, occurred_ts,
			prior_strength, prior_interval_days, prior_reviewed_ts)
		VALUES (` + placeholders(8) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, eventStmt,
		event.ItemID, event.OwnerID, event.Grade, event.ResponseLatencyMs, event.OccurredTs,
		priorStrength, priorIntervalDays, event.PriorReviewedTs,
	).Scan(&event.ID); err != nil {
		return nil, fmt.Errorf("failed to append review event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}
	return updated, nil
}

func (d *DB) DeleteReviewItem(ctx context.Context, delete *store.DeleteReviewItem) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM review_event WHERE item_id = "+placeholder(1), delete.ID); err != nil {
		return fmt.Errorf("failed to delete review events: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM review_item WHERE id = "+placeholder(1), delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete review item: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("review item %d: %w", delete.ID, sql.ErrNoRows)
	}
	return tx.Commit()
}

func (d *DB) ListReviewOwners(ctx context.Context) ([]int32, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT owner_id FROM review_item ORDER BY owner_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query review owners: %w", err)
	}
	defer rows.Close()

	owners := make([]int32, 0)
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan review owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}
