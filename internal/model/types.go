package model

import "time"

// Role identifies the author of a message within a topic.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// User represents an account in the system.
type User struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreationTime time.Time `json:"creationTime"`
}

// Topic is a user-owned conversation thread.
type Topic struct {
	TopicID      string    `json:"topicId"`
	UserID       string    `json:"userId"`
	Title        string    `json:"title"`
	CreationTime time.Time `json:"creationTime"`
}

// Message is one immutable utterance within a topic.
type Message struct {
	MessageID    string    `json:"messageId"`
	TopicID      string    `json:"topicId"`
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	CreationTime time.Time `json:"creationTime"`
}

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Token is an issued bearer credential bound to a user.
type Token struct {
	Token        string    `json:"token"`
	UserID       string    `json:"userId"`
	Kind         TokenKind `json:"kind"`
	ExpiryTime   time.Time `json:"expiryTime"`
	CreationTime time.Time `json:"creationTime"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *Token) Expired(now time.Time) bool { return now.After(t.ExpiryTime) }

// ListMessagesRequest captures filters used when listing messages.
type ListMessagesRequest struct {
	UserID  string
	TopicID string
	Limit   int
	Before  *time.Time
	After   *time.Time
}
