package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/store"
	"github.com/mindmark/mindmark-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "test.sqlite3"))
	require.NoError(t, err)
	return s
}

func mustUser(t *testing.T, s store.Store, username string) *model.User {
	t.Helper()
	u, err := s.Users().Create(context.Background(), &model.User{
		UserID:       uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return u
}

// stubAgents answers every Get with a fixed agent.
type stubAgents struct {
	mu          sync.Mutex
	agent       Agent
	getErr      error
	invalidated []session.Key
}

func (s *stubAgents) Get(_ context.Context, _ session.Key) (Agent, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.agent, nil
}

func (s *stubAgents) Invalidate(key session.Key) {
	s.mu.Lock()
	s.invalidated = append(s.invalidated, key)
	s.mu.Unlock()
}

type stubAgent struct {
	mu      sync.Mutex
	reply   string
	err     error
	active  int
	overlap bool
	lastIn  string
}

func (a *stubAgent) Run(_ context.Context, userText string) (string, error) {
	a.mu.Lock()
	a.lastIn = userText
	a.active++
	if a.active > 1 {
		a.overlap = true
	}
	a.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	a.mu.Lock()
	a.active--
	a.mu.Unlock()

	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(newTestStore(t))

	u, err := svc.Register(ctx, "ada", "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, u.UserID)
	assert.Equal(t, "ada", u.Username)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "hunter22", u.PasswordHash)

	// duplicate username
	_, err = svc.Register(ctx, "ada", "other@example.com", "hunter22")
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestUserService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(newTestStore(t))

	cases := []struct {
		name                      string
		username, email, password string
	}{
		{"empty username", "", "a@example.com", "hunter22"},
		{"blank username", "   ", "a@example.com", "hunter22"},
		{"bad email", "ada", "not-an-email", "hunter22"},
		{"short password", "ada", "a@example.com", "12345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.email, tc.password)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestTopicService_CRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	agents := &stubAgents{}
	svc := NewTopicService(st, agents)
	u := mustUser(t, st, "ada")

	tp, err := svc.CreateTopic(ctx, u.UserID, "  Research Notes  ")
	require.NoError(t, err)
	assert.Equal(t, "Research Notes", tp.Title)

	got, err := svc.GetTopic(ctx, u.UserID, tp.TopicID)
	require.NoError(t, err)
	assert.Equal(t, tp.TopicID, got.TopicID)

	renamed, err := svc.RenameTopic(ctx, u.UserID, tp.TopicID, "Lab Notes")
	require.NoError(t, err)
	assert.Equal(t, "Lab Notes", renamed.Title)

	require.NoError(t, svc.DeleteTopic(ctx, u.UserID, tp.TopicID))
	assert.Equal(t, []session.Key{session.KeyFor(u.UserID, tp.TopicID)}, agents.invalidated)

	_, err = svc.GetTopic(ctx, u.UserID, tp.TopicID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTopicService_EmptyTitleRejected(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := NewTopicService(st, nil)
	u := mustUser(t, st, "ada")

	_, err := svc.CreateTopic(ctx, u.UserID, "   ")
	assert.ErrorIs(t, err, model.ErrValidation)

	topics, err := svc.ListTopics(ctx, u.UserID)
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestTopicService_CrossUserIsolation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := NewTopicService(st, nil)
	owner := mustUser(t, st, "owner")
	other := mustUser(t, st, "other")

	tp, err := svc.CreateTopic(ctx, owner.UserID, "private")
	require.NoError(t, err)

	_, err = svc.GetTopic(ctx, other.UserID, tp.TopicID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.RenameTopic(ctx, other.UserID, tp.TopicID, "stolen")
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = svc.DeleteTopic(ctx, other.UserID, tp.TopicID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// owner still sees it untouched
	got, err := svc.GetTopic(ctx, owner.UserID, tp.TopicID)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Title)
}

func TestMessageService_OwnershipCollapse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := NewMessageService(st)
	owner := mustUser(t, st, "owner")
	other := mustUser(t, st, "other")

	tp, err := st.Topics().Create(ctx, &model.Topic{TopicID: uuid.NewString(), UserID: owner.UserID, Title: "t"})
	require.NoError(t, err)

	_, err = svc.ListMessages(ctx, model.ListMessagesRequest{UserID: other.UserID, TopicID: tp.TopicID})
	assert.ErrorIs(t, err, model.ErrNotFound)

	msgs, err := svc.ListMessages(ctx, model.ListMessagesRequest{UserID: owner.UserID, TopicID: tp.TopicID})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func newTurnFixture(t *testing.T, agents Agents) (*TurnService, store.Store, *model.User, *model.Topic) {
	t.Helper()
	st := newTestStore(t)
	u := mustUser(t, st, "ada")
	tp, err := st.Topics().Create(context.Background(), &model.Topic{TopicID: uuid.NewString(), UserID: u.UserID, Title: "t"})
	require.NoError(t, err)
	svc := NewTurnService(st, session.NewResolver(st), agents, zerolog.Nop())
	return svc, st, u, tp
}

func TestTurnService_RunTurn(t *testing.T) {
	ctx := context.Background()
	agents := &stubAgents{agent: &stubAgent{reply: "42"}}
	svc, st, u, tp := newTurnFixture(t, agents)

	res, err := svc.RunTurn(ctx, u.UserID, tp.TopicID, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", res.AgentResponse)
	assert.Equal(t, model.RoleUser, res.UserMessage.Role)
	assert.Equal(t, model.RoleAssistant, res.AssistantMessage.Role)
	assert.Equal(t, "42", res.AssistantMessage.Content)

	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: u.UserID, TopicID: tp.TopicID})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "what is the answer?", msgs[0].Content)
	assert.Equal(t, "42", msgs[1].Content)
}

func TestTurnService_TrimsContentBeforeRecording(t *testing.T) {
	ctx := context.Background()
	ag := &stubAgent{reply: "ok"}
	agents := &stubAgents{agent: ag}
	svc, st, u, tp := newTurnFixture(t, agents)

	res, err := svc.RunTurn(ctx, u.UserID, tp.TopicID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.UserMessage.Content)
	assert.Equal(t, "hello", ag.lastIn)

	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: u.UserID, TopicID: tp.TopicID})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestTurnService_EmptyContentNoSideEffects(t *testing.T) {
	ctx := context.Background()
	agents := &stubAgents{agent: &stubAgent{reply: "x"}}
	svc, st, u, tp := newTurnFixture(t, agents)

	_, err := svc.RunTurn(ctx, u.UserID, tp.TopicID, "   ")
	assert.ErrorIs(t, err, model.ErrValidation)

	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: u.UserID, TopicID: tp.TopicID})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTurnService_UnknownTopic(t *testing.T) {
	ctx := context.Background()
	agents := &stubAgents{agent: &stubAgent{reply: "x"}}
	svc, _, u, _ := newTurnFixture(t, agents)

	_, err := svc.RunTurn(ctx, u.UserID, uuid.NewString(), "hi")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTurnService_AgentFailureLeavesUserMessage(t *testing.T) {
	ctx := context.Background()
	agents := &stubAgents{agent: &stubAgent{err: errors.New("model down")}}
	svc, st, u, tp := newTurnFixture(t, agents)

	_, err := svc.RunTurn(ctx, u.UserID, tp.TopicID, "hi")
	require.Error(t, err)

	// the user's utterance is committed even though the turn failed
	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{UserID: u.UserID, TopicID: tp.TopicID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestTurnService_UnavailableAgent(t *testing.T) {
	ctx := context.Background()
	agents := &stubAgents{getErr: model.ErrUnavailable}
	svc, _, u, tp := newTurnFixture(t, agents)

	_, err := svc.RunTurn(ctx, u.UserID, tp.TopicID, "hi")
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestTurnService_SerializesPerSession(t *testing.T) {
	ctx := context.Background()
	ag := &stubAgent{reply: "ok"}
	agents := &stubAgents{agent: ag}
	svc, _, u, tp := newTurnFixture(t, agents)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RunTurn(ctx, u.UserID, tp.TopicID, "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, ag.overlap, "turns on the same session key must not overlap")
}
