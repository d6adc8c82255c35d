package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wellsync/internal/model"
)

// SaveConflict inserts or updates a conflict record. Snapshots are stored
// as JSONB so resolution can replay them without refetching.
func (s *Store) SaveConflict(ctx context.Context, c *model.Conflict) error {
	local, err := json.Marshal(c.Local)
	if err != nil {
		return fmt.Errorf("marshal local snapshot: %w", err)
	}
	remote, err := json.Marshal(c.Remote)
	if err != nil {
		return fmt.Errorf("marshal remote snapshot: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
INSERT INTO calendar_conflicts
  (id, user_id, local_snapshot, remote_snapshot, conflict_type, resolution, created_at, resolved_at, resolved_by)
VALUES ($1,$2,$3::jsonb,$4::jsonb,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  resolution = EXCLUDED.resolution,
  resolved_at = EXCLUDED.resolved_at,
  resolved_by = EXCLUDED.resolved_by`,
		c.ID, c.UserID, string(local), string(remote), c.Type, c.Resolution,
		c.CreatedAt, c.ResolvedAt, c.ResolvedBy)
	if err != nil {
		return fmt.Errorf("save conflict %s: %w", c.ID, err)
	}
	return nil
}

// ConflictByID returns the conflict or (nil, nil) when absent.
func (s *Store) ConflictByID(ctx context.Context, id string) (*model.Conflict, error) {
	row := s.db.Pool.QueryRow(ctx, `
SELECT id, user_id, local_snapshot, remote_snapshot, conflict_type, resolution, created_at, resolved_at, resolved_by
FROM calendar_conflicts WHERE id = $1`, id)
	c, err := scanConflict(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conflict %s: %w", id, err)
	}
	return c, nil
}

// ConflictsForUser lists the user's conflicts, newest first. With
// pendingOnly set, resolved conflicts are excluded.
func (s *Store) ConflictsForUser(ctx context.Context, userID string, pendingOnly bool) ([]model.Conflict, error) {
	query := `
SELECT id, user_id, local_snapshot, remote_snapshot, conflict_type, resolution, created_at, resolved_at, resolved_by
FROM calendar_conflicts WHERE user_id = $1`
	if pendingOnly {
		query += ` AND resolution = 'pending'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var out []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanConflict(row pgx.Row) (*model.Conflict, error) {
	var (
		c      model.Conflict
		local  []byte
		remote []byte
	)
	err := row.Scan(&c.ID, &c.UserID, &local, &remote, &c.Type, &c.Resolution,
		&c.CreatedAt, &c.ResolvedAt, &c.ResolvedBy)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(local, &c.Local); err != nil {
		return nil, fmt.Errorf("unmarshal local snapshot: %w", err)
	}
	if err := json.Unmarshal(remote, &c.Remote); err != nil {
		return nil, fmt.Errorf("unmarshal remote snapshot: %w", err)
	}
	return &c, nil
}
