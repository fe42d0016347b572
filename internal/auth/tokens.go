package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/store"
)

// TokenPair is the result of a successful login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenIssuer creates and rotates opaque bearer tokens.
type TokenIssuer struct {
	store      store.Store
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(s store.Store, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{store: s, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issue validates the credentials and returns a fresh access/refresh pair.
func (i *TokenIssuer) Issue(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := i.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, model.ErrInvalidCredentials
	}

	access, err := i.mint(ctx, u.UserID, model.TokenAccess, i.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := i.mint(ctx, u.UserID, model.TokenRefresh, i.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (i *TokenIssuer) Refresh(ctx context.Context, refreshToken string) (string, error) {
	rec, err := i.store.Tokens().Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", model.ErrInvalidCredentials
		}
		return "", err
	}
	if rec.Kind != model.TokenRefresh || rec.Expired(i.now()) {
		return "", model.ErrInvalidCredentials
	}
	return i.mint(ctx, rec.UserID, model.TokenAccess, i.accessTTL)
}

func (i *TokenIssuer) mint(ctx context.Context, userID string, kind model.TokenKind, ttl time.Duration) (string, error) {
	// Two UUIDs give 256 bits of randomness; token storage is the single
	// source of validity.
	tok := uuid.New().String() + uuid.New().String()
	rec := &model.Token{
		Token:      tok,
		UserID:     userID,
		Kind:       kind,
		ExpiryTime: i.now().Add(ttl),
	}
	if err := i.store.Tokens().Put(ctx, rec); err != nil {
		return "", err
	}
	return tok, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
