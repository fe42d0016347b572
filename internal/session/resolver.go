// Package session derives the identity that scopes agent memory and history
// to a single (user, topic) pair.
package session

import (
	"context"
	"fmt"

	"github.com/mindmark/mindmark-server/internal/store"
)

// Key scopes an agent's memory and history stores to one (user, topic) pair.
// Keys are deterministic and stable across restarts, so conversational state
// survives the process.
type Key string

func (k Key) String() string { return string(k) }

// KeyFor builds the session key for a (user, topic) pair without ownership
// checks. Distinct pairs always yield distinct keys: both ids are UUIDs, so
// neither can contain the "-topic-" separator ambiguity.
func KeyFor(userID, topicID string) Key {
	return Key(fmt.Sprintf("user-%s-topic-%s", userID, topicID))
}

// Resolver maps an authorized (user, topic) pair onto a session key.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver { return &Resolver{store: s} }

// Resolve verifies that topicID exists and is owned by userID, then returns
// the session key. A missing or non-owned topic yields model.ErrNotFound from
// the store; no key is produced in that case.
func (r *Resolver) Resolve(ctx context.Context, userID, topicID string) (Key, error) {
	if _, err := r.store.Topics().GetByID(ctx, userID, topicID); err != nil {
		return "", err
	}
	return KeyFor(userID, topicID), nil
}
