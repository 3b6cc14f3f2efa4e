// Package sqlitegraph stores follow edges in a SQLite follows table.
package sqlitegraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ggoodman/toolwire/socialgraph"
)

var _ socialgraph.Store = (*Graph)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS follows (
	follower_id TEXT NOT NULL,
	followee_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (follower_id, followee_id)
);

CREATE INDEX IF NOT EXISTS idx_follows_followee
ON follows(followee_id);`

// Config configures the SQLite graph.
type Config struct {
	DSN string
}

type Graph struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite-backed graph.
func Open(cfg Config) (*Graph, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlitegraph: dsn is required")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitegraph: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitegraph: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitegraph: create schema: %w", err)
	}
	return &Graph{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (g *Graph) Close() error { return g.db.Close() }

func (g *Graph) Followers(ctx context.Context, userID string) ([]string, error) {
	return g.list(ctx, `SELECT follower_id FROM follows WHERE followee_id = ? ORDER BY follower_id ASC`, userID)
}

func (g *Graph) Following(ctx context.Context, userID string) ([]string, error) {
	return g.list(ctx, `SELECT followee_id FROM follows WHERE follower_id = ? ORDER BY followee_id ASC`, userID)
}

func (g *Graph) list(ctx context.Context, query, userID string) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlitegraph: query: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitegraph: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitegraph: rows: %w", err)
	}
	return ids, nil
}

func (g *Graph) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return false, socialgraph.ErrSelfFollow
	}
	res, err := g.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`,
		followerID, followeeID, g.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("sqlitegraph: follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlitegraph: follow rows affected: %w", err)
	}
	return n > 0, nil
}

func (g *Graph) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	res, err := g.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlitegraph: unfollow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlitegraph: unfollow rows affected: %w", err)
	}
	return n > 0, nil
}
