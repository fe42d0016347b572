package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore keeps memory fragments in the agent database and recalls by
// recency. Suits local deployments with no vector index.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore { return &SQLiteStore{db: db} }

func (s *SQLiteStore) Remember(ctx context.Context, sessionKey, content string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO memory_fragments (fragment_id, session_key, content, creation_time)
        VALUES (?,?,?,?)
    `, uuid.New().String(), sessionKey, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recall(ctx context.Context, sessionKey, query string, limit int) ([]Fragment, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT fragment_id, content, creation_time
        FROM memory_fragments WHERE session_key = ?
        ORDER BY creation_time DESC LIMIT ?
    `, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Fragment
	for rows.Next() {
		f := Fragment{SessionKey: sessionKey}
		if err := rows.Scan(&f.FragmentID, &f.Content, &f.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
