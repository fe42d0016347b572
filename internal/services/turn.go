package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/store"
)

// Agent runs one conversational turn for the session it is bound to.
type Agent interface {
	Run(ctx context.Context, userText string) (string, error)
}

// Agents hands out session-bound agents and drops cached ones.
type Agents interface {
	Get(ctx context.Context, key session.Key) (Agent, error)
	Invalidate(key session.Key)
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	UserMessage      *model.Message
	AssistantMessage *model.Message
	AgentResponse    string
}

// TurnService runs chat turns: it records the user's message, delegates to
// the session's agent, and records the agent's reply. Turns on the same
// session key run one at a time.
type TurnService struct {
	store    store.Store
	resolver *session.Resolver
	agents   Agents
	locks    *keyedLocks
	log      zerolog.Logger
}

func NewTurnService(s store.Store, resolver *session.Resolver, agents Agents, log zerolog.Logger) *TurnService {
	return &TurnService{
		store:    s,
		resolver: resolver,
		agents:   agents,
		locks:    newKeyedLocks(),
		log:      log.With().Str("component", "turn_service").Logger(),
	}
}

// RunTurn executes one chat turn for (userID, topicID).
//
// The user's message is committed before the agent runs; if the agent or the
// assistant write fails afterwards the user message stays recorded and the
// error is returned. Callers retrying may therefore see their utterance in
// the transcript without a paired reply.
func (s *TurnService) RunTurn(ctx context.Context, userID, topicID, content string) (*TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content must not be empty", model.ErrValidation)
	}

	key, err := s.resolver.Resolve(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}

	release := s.locks.Acquire(key)
	defer release()

	userMsg, err := s.store.Messages().Create(ctx, &model.Message{
		MessageID: uuid.NewString(),
		TopicID:   topicID,
		Role:      model.RoleUser,
		Content:   content,
	})
	if err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}

	a, err := s.agents.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	reply, err := a.Run(ctx, content)
	if err != nil {
		s.log.Error().Err(err).Str("session", key.String()).Msg("agent turn failed after user message was recorded")
		return nil, err
	}

	assistantMsg, err := s.store.Messages().Create(ctx, &model.Message{
		MessageID: uuid.NewString(),
		TopicID:   topicID,
		Role:      model.RoleAssistant,
		Content:   reply,
	})
	if err != nil {
		return nil, fmt.Errorf("record assistant message: %w", err)
	}

	return &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		AgentResponse:    reply,
	}, nil
}
