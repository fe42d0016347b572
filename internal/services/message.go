package services

import (
	"context"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/store"
)

// MessageService serves read access to a topic's transcript.
type MessageService struct {
	store store.Store
}

func NewMessageService(s store.Store) *MessageService { return &MessageService{store: s} }

// ListMessages verifies topic ownership, then returns its messages oldest
// first. The ownership probe collapses "missing" and "not yours" into
// model.ErrNotFound so existence never leaks across users.
func (s *MessageService) ListMessages(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error) {
	if _, err := s.store.Topics().GetByID(ctx, req.UserID, req.TopicID); err != nil {
		return nil, err
	}
	return s.store.Messages().List(ctx, req)
}
