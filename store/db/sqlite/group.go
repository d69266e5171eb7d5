package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/recall/store"
)

const groupColumns = `id, uid, owner_id, name, created_ts, updated_ts,
	snapshot_mastered, snapshot_learning, snapshot_new, snapshot_total, snapshot_computed_ts`

func scanGroup(row rowScanner) (*store.Group, error) {
	var group store.Group
	var snapshot store.GroupSnapshot
	var computedTs sql.NullInt64
	if err := row.Scan(
		&group.ID,
		&group.UID,
		&group.OwnerID,
		&group.Name,
		&group.CreatedTs,
		&group.UpdatedTs,
		&snapshot.Mastered,
		&snapshot.Learning,
		&snapshot.New,
		&snapshot.Total,
		&computedTs,
	); err != nil {
		return nil, err
	}
	if computedTs.Valid {
		snapshot.GroupID = group.ID
		snapshot.ComputedTs = computedTs.Int64
		group.Snapshot = &snapshot
	}
	return &group, nil
}

func (d *DB) CreateGroup(ctx context.Context, create *store.Group) (*store.Group, error) {
	fields := []string{"uid", "owner_id", "name"}
	placeholderValues := []any{create.UID, create.OwnerID, create.Name}

	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}
	if create.UpdatedTs != 0 {
		fields = append(fields, "updated_ts")
		placeholderValues = append(placeholderValues, create.UpdatedTs)
	}

	stmt := `INSERT INTO review_group (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING ` + groupColumns

	group, err := scanGroup(d.db.QueryRowContext(ctx, stmt, placeholderValues...))
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return group, nil
}

func (d *DB) ListGroups(ctx context.Context, find *store.FindGroup) ([]*store.Group, error) {
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

	query := `SELECT ` + groupColumns + `
		FROM review_group
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Group, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		list = append(list, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateGroup(ctx context.Context, update *store.UpdateGroup) (*store.Group, error) {
	set, args := []string{}, []any{}

	if v := update.UpdatedTs; v != 0 {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, v)
	}

	if v := update.Name; v != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Snapshot; v != nil {
		set = append(set,
			"snapshot_mastered = "+placeholder(len(args)+1),
			"snapshot_learning = "+placeholder(len(args)+2),
			"snapshot_new = "+placeholder(len(args)+3),
			"snapshot_total = "+placeholder(len(args)+4),
			"snapshot_computed_ts = "+placeholder(len(args)+5),
		)
		args = append(args, v.Mastered, v.Learning, v.New, v.Total, v.ComputedTs)
	}

	if len(set) == 0 {
		set = append(set, "updated_ts = updated_ts")
	}
	args = append(args, update.ID)
	stmt := `UPDATE review_group SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)) + `
		RETURNING ` + groupColumns

	group, err := scanGroup(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	return group, nil
}

func (d *DB) DeleteGroup(ctx context.Context, delete *store.DeleteGroup) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if delete.Cascade {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM review_event WHERE item_id IN (SELECT id FROM review_item WHERE group_id = "+placeholder(1)+")",
			delete.ID,
		); err != nil {
			return fmt.Errorf("failed to delete group review events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM review_item WHERE group_id = "+placeholder(1), delete.ID); err != nil {
			return fmt.Errorf("failed to delete group review items: %w", err)
		}
	} else {
		stmt, args := "UPDATE review_item SET group_id = NULL WHERE group_id = "+placeholder(1), []any{delete.ID}
		if delete.UpdatedTs != 0 {
			stmt = "UPDATE review_item SET group_id = NULL, updated_ts = " + placeholder(1) + " WHERE group_id = " + placeholder(2)
			args = []any{delete.UpdatedTs, delete.ID}
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to clear group membership: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM review_group WHERE id = "+placeholder(1), delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("group %d: %w", delete.ID, sql.ErrNoRows)
	}
	return tx.Commit()
}
