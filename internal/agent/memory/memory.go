// Package memory persists long-term memory fragments scoped by session key.
// Two backends exist: a sqlite table in the agent database (default) and a
// Weaviate class with hybrid recall for deployments running an index.
package memory

import (
	"context"
	"time"
)

// Fragment is one stored insight about a session.
type Fragment struct {
	FragmentID   string    `json:"fragmentId"`
	SessionKey   string    `json:"sessionKey"`
	Content      string    `json:"content"`
	CreationTime time.Time `json:"creationTime"`
}

// Store persists and recalls memory fragments. Implementations must scope
// every operation to the given session key; fragments from one key are never
// visible to another.
type Store interface {
	Remember(ctx context.Context, sessionKey, content string) error
	// Recall returns up to limit fragments relevant to query, most relevant
	// (or most recent) first.
	Recall(ctx context.Context, sessionKey, query string, limit int) ([]Fragment, error)
	HealthPing(ctx context.Context) error
}
