package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wellsync/internal/model"
)

const connectionColumns = `id, user_id, provider, calendar_id, access_token, active, created_at`

// SaveConnection inserts or updates a provider connection.
func (s *Store) SaveConnection(ctx context.Context, conn *model.ProviderConnection) error {
	_, err := s.db.Pool.Exec(ctx, `
INSERT INTO provider_connections (`+connectionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  calendar_id = EXCLUDED.calendar_id,
  access_token = EXCLUDED.access_token,
  active = EXCLUDED.active`,
		conn.ID, conn.UserID, conn.Provider, conn.CalendarID,
		conn.AccessToken, conn.Active, conn.CreatedAt)
	if err != nil {
		return fmt.Errorf("save connection %s: %w", conn.ID, err)
	}
	return nil
}

// ActiveConnections lists the user's active connections for one provider.
func (s *Store) ActiveConnections(ctx context.Context, userID string, p model.Provider) ([]model.ProviderConnection, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT `+connectionColumns+` FROM provider_connections
WHERE user_id = $1 AND provider = $2 AND active`, userID, string(p))
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

// AllActiveConnections lists every active connection process-wide; the
// scheduler uses it to find due sync pairs.
func (s *Store) AllActiveConnections(ctx context.Context) ([]model.ProviderConnection, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT `+connectionColumns+` FROM provider_connections WHERE active
ORDER BY user_id, provider`)
	if err != nil {
		return nil, fmt.Errorf("query active connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func collectConnections(rows pgx.Rows) ([]model.ProviderConnection, error) {
	var out []model.ProviderConnection
	for rows.Next() {
		var c model.ProviderConnection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.CalendarID,
			&c.AccessToken, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
