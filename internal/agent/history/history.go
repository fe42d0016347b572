// Package history persists per-session-key chat history for the agent.
// History is keyed strictly by session key so no turns leak across topics or
// users.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/session"
)

// Turn is one recorded utterance in a session's history.
type Turn struct {
	Role         model.Role
	Content      string
	CreationTime time.Time
}

// Store persists and recalls session history.
type Store interface {
	Append(ctx context.Context, key session.Key, role model.Role, content string) error
	// Recent returns the last `turns` exchanges (user+assistant pairs) in
	// chronological order.
	Recent(ctx context.Context, key session.Key, turns int) ([]Turn, error)
	HealthPing(ctx context.Context) error
}

// SQLiteStore stores history in the agent database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore { return &SQLiteStore{db: db} }

func (s *SQLiteStore) Append(ctx context.Context, key session.Key, role model.Role, content string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO session_history (session_key, role, content, creation_time)
        VALUES (?,?,?,?)
    `, key.String(), string(role), content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, key session.Key, turns int) ([]Turn, error) {
	if turns <= 0 {
		return nil, nil
	}
	// Fetch the last N messages by ordering DESC, then reverse back to
	// chronological order for the model.
	rows, err := s.db.QueryContext(ctx, `
        SELECT role, content, creation_time
        FROM session_history WHERE session_key = ?
        ORDER BY id DESC LIMIT ?
    `, key.String(), turns*2)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.CreationTime); err != nil {
			return nil, err
		}
		t.Role = model.Role(role)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
