package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/recall/store"
)

func (d *DB) ListReviewEvents(ctx context.Context, find *store.FindReviewEvent) ([]*store.ReviewEvent, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ItemID; v != nil {
		where, args = append(where, "item_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.OccurredFromTs; v != nil {
		where, args = append(where, "occurred_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT id, item_id, owner_id, grade, response_latency_ms, occurred_ts,
			prior_strength, prior_interval_days, prior_reviewed_ts
		FROM review_event
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY item_id ASC, occurred_ts ASC, id ASC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query review events: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ReviewEvent, 0)
	for rows.Next() {
		var event store.ReviewEvent
		var priorStrength sql.NullFloat64
		var priorIntervalDays, priorReviewedTs sql.NullInt64
		if err := rows.Scan(
			&event.ID,
			&event.ItemID,
			&event.OwnerID,
			&event.Grade,
			&event.ResponseLatencyMs,
			&event.OccurredTs,
			&priorStrength,
			&priorIntervalDays,
			&priorReviewedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review event: %w", err)
		}
		if priorStrength.Valid && priorIntervalDays.Valid {
			event.PriorStrength = priorStrength.Float64
			event.PriorIntervalDays = int(priorIntervalDays.Int64)
		}
		if priorReviewedTs.Valid {
			event.PriorReviewedTs = &priorReviewedTs.Int64
		}
		list = append(list, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review events: %w", err)
	}
	return list, nil
}
