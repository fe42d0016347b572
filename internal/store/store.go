package store

import (
	"context"

	"github.com/mindmark/mindmark-server/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
//
// Topic and message reads take a userID and return model.ErrNotFound both
// when the resource does not exist and when it is owned by another user.
type Store interface {
	Users() Users
	Topics() Topics
	Messages() Messages
	Tokens() Tokens
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type Topics interface {
	Create(ctx context.Context, t *model.Topic) (*model.Topic, error)
	// GetByID returns ErrNotFound when the topic is missing or not owned by userID.
	GetByID(ctx context.Context, userID, topicID string) (*model.Topic, error)
	// List returns the user's topics ordered newest-created-first.
	List(ctx context.Context, userID string) ([]*model.Topic, error)
	Rename(ctx context.Context, userID, topicID, title string) (*model.Topic, error)
	// Delete removes the topic and cascades to its messages.
	Delete(ctx context.Context, userID, topicID string) error
}

type Messages interface {
	Create(ctx context.Context, m *model.Message) (*model.Message, error)
	// List returns messages for an already-authorized topic, oldest first.
	List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error)
}

type Tokens interface {
	Put(ctx context.Context, t *model.Token) error
	Get(ctx context.Context, token string) (*model.Token, error)
	DeleteForUser(ctx context.Context, userID string, kind model.TokenKind) error
}
