package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/store"
)

const maxTitleLen = 200

// TopicService handles topic CRUD. All reads and writes are scoped to the
// acting user; a topic owned by someone else behaves as if it did not exist.
type TopicService struct {
	store  store.Store
	agents Agents
}

// NewTopicService creates the service. agents may be nil when no agent
// runtime is wired (deleting a topic then skips cache invalidation).
func NewTopicService(s store.Store, agents Agents) *TopicService {
	return &TopicService{store: s, agents: agents}
}

func (s *TopicService) CreateTopic(ctx context.Context, userID, title string) (*model.Topic, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	return s.store.Topics().Create(ctx, &model.Topic{
		TopicID: uuid.NewString(),
		UserID:  userID,
		Title:   title,
	})
}

func (s *TopicService) GetTopic(ctx context.Context, userID, topicID string) (*model.Topic, error) {
	return s.store.Topics().GetByID(ctx, userID, topicID)
}

func (s *TopicService) ListTopics(ctx context.Context, userID string) ([]*model.Topic, error) {
	return s.store.Topics().List(ctx, userID)
}

func (s *TopicService) RenameTopic(ctx context.Context, userID, topicID, title string) (*model.Topic, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	return s.store.Topics().Rename(ctx, userID, topicID, title)
}

// DeleteTopic removes the topic and its messages, and drops any cached agent
// for the session so a recreated topic never inherits a stale instance.
func (s *TopicService) DeleteTopic(ctx context.Context, userID, topicID string) error {
	if err := s.store.Topics().Delete(ctx, userID, topicID); err != nil {
		return err
	}
	if s.agents != nil {
		s.agents.Invalidate(session.KeyFor(userID, topicID))
	}
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title must not be empty", model.ErrValidation)
	}
	if len(title) > maxTitleLen {
		return "", fmt.Errorf("%w: title exceeds %d characters", model.ErrValidation, maxTitleLen)
	}
	return title, nil
}
