package postgres

import (
	"context"
	"fmt"

	"github.com/hrygo/recall/store"
)

func (d *DB) UpsertUserStatistics(ctx context.Context, upsert *store.UserStatistics) (*store.UserStatistics, error) {
	stmt := `INSERT INTO user_statistics (
			owner_id, mastered, learning, new_count, total, due_now, total_reviews, correct_reviews, computed_ts
		)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (owner_id) DO UPDATE SET
			mastered = EXCLUDED.mastered,
			learning = EXCLUDED.learning,
			new_count = EXCLUDED.new_count,
			total = EXCLUDED.total,
			due_now = EXCLUDED.due_now,
			total_reviews = EXCLUDED.total_reviews,
			correct_reviews = EXCLUDED.correct_reviews,
			computed_ts = EXCLUDED.computed_ts`

	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.OwnerID, upsert.Mastered, upsert.Learning, upsert.New, upsert.Total,
		upsert.DueNow, upsert.TotalReviews, upsert.CorrectReviews, upsert.ComputedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert user_statistics: %w", err)
	}
	return upsert, nil
}

func (d *DB) ListUserStatistics(ctx context.Context, find *store.FindUserStatistics) ([]*store.UserStatistics, error) {
	query := `SELECT owner_id, mastered, learning, new_count, total, due_now, total_reviews, correct_reviews, computed_ts
		FROM user_statistics`
	args := []any{}
	if v := find.OwnerID; v != nil {
		query += " WHERE owner_id = " + placeholder(1)
		args = append(args, *v)
	}
	query += " ORDER BY owner_id ASC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user_statistics: %w", err)
	}
	defer rows.Close()

	list := make([]*store.UserStatistics, 0)
	for rows.Next() {
		var stats store.UserStatistics
		if err := rows.Scan(
			&stats.OwnerID,
			&stats.Mastered,
			&stats.Learning,
			&stats.New,
			&stats.Total,
			&stats.DueNow,
			&stats.TotalReviews,
			&stats.CorrectReviews,
			&stats.ComputedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user_statistics: %w", err)
		}
		list = append(list, &stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user_statistics: %w", err)
	}
	return list, nil
}
