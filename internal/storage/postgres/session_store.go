package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

// SessionStore records finished crawl sessions.
type SessionStore struct {
	db    DB
	table string
}

// NewSessionStore builds a SessionStore writing into table.
func NewSessionStore(db DB, table string) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_sessions"
	}
	if err := checkIdentifier("table", table); err != nil {
		return nil, err
	}
	return &SessionStore{db: db, table: table}, nil
}

// PublishSummary upserts one row per session and returns the session id.
func (s *SessionStore) PublishSummary(ctx context.Context, stats crawler.Stats) (string, error) {
	skipped, err := json.Marshal(stats.Skipped)
	if err != nil {
		return "", fmt.Errorf("marshal skip counts: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	started_at,
	finished_at,
	stop_reason,
	total_publications,
	delivered,
	undelivered,
	pages_visited,
	pages_failed,
	skipped
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (session_id) DO UPDATE
SET finished_at = EXCLUDED.finished_at,
	stop_reason = EXCLUDED.stop_reason`, s.table)

	args := []any{
		stats.SessionID,
		stats.StartedAt,
		stats.FinishedAt,
		string(stats.StopReason),
		stats.TotalPublications,
		stats.Delivered,
		stats.Undelivered,
		stats.PagesVisited,
		stats.PagesFailed,
		skipped,
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return stats.SessionID, nil
}
