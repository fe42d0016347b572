package auth

import (
	"context"
	"errors"
	"time"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/store"
)

// Actor identifies the authenticated user behind a request.
type Actor struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Authorizer validates bearer tokens and resolves them to an actor.
type Authorizer interface {
	// Authorize returns the actor for a valid access token, or
	// model.ErrInvalidCredentials.
	Authorize(ctx context.Context, token string) (*Actor, error)
}

// TokenAuthorizer resolves opaque access tokens against the token store.
type TokenAuthorizer struct {
	store store.Store
	now   func() time.Time
}

func NewTokenAuthorizer(s store.Store) *TokenAuthorizer {
	return &TokenAuthorizer{store: s, now: time.Now}
}

func (a *TokenAuthorizer) Authorize(ctx context.Context, token string) (*Actor, error) {
	if token == "" {
		return nil, model.ErrInvalidCredentials
	}
	rec, err := a.store.Tokens().Get(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}
	if rec.Kind != model.TokenAccess || rec.Expired(a.now()) {
		return nil, model.ErrInvalidCredentials
	}
	u, err := a.store.Users().Get(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}
	return &Actor{UserID: u.UserID, Username: u.Username}, nil
}
