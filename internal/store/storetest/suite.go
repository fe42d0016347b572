package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	mkUser := func(name string) *model.User {
		u, err := s.Users().Create(ctx, &model.User{
			Username:     name + "-" + uuid.New().String()[:8],
			Email:        name + "@example.test",
			PasswordHash: "x",
		})
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		return u
	}

	alice := mkUser("alice")
	bob := mkUser("bob")

	// Users
	if got, err := s.Users().Get(ctx, alice.UserID); err != nil || got.Username != alice.Username {
		t.Fatalf("GetUser: got=%v err=%v", got, err)
	}
	if got, err := s.Users().GetByUsername(ctx, alice.Username); err != nil || got.UserID != alice.UserID {
		t.Fatalf("GetUserByUsername: got=%v err=%v", got, err)
	}
	if _, err := s.Users().Get(ctx, "no-such-user"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetUser missing: want ErrNotFound, got %v", err)
	}
	if _, err := s.Users().Create(ctx, &model.User{Username: alice.Username, Email: "dup@example.test", PasswordHash: "x"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate username: want ErrConflict, got %v", err)
	}

	// Topics
	t1, err := s.Topics().Create(ctx, &model.Topic{UserID: alice.UserID, Title: "first"})
	if err != nil {
		t.Fatalf("CreateTopic t1: %v", err)
	}
	if t1.TopicID == "" {
		t.Fatalf("CreateTopic: empty topic id")
	}
	t2, err := s.Topics().Create(ctx, &model.Topic{UserID: alice.UserID, Title: "second"})
	if err != nil {
		t.Fatalf("CreateTopic t2: %v", err)
	}

	if got, err := s.Topics().GetByID(ctx, alice.UserID, t1.TopicID); err != nil || got.Title != "first" {
		t.Fatalf("GetTopic: got=%v err=%v", got, err)
	}
	// read twice without intervening writes returns equal results
	again, err := s.Topics().GetByID(ctx, alice.UserID, t1.TopicID)
	if err != nil || again.Title != "first" || again.TopicID != t1.TopicID || !again.CreationTime.Equal(t1.CreationTime) {
		t.Fatalf("GetTopic repeat: got=%v err=%v", again, err)
	}

	// ownership collapses to ErrNotFound for other users
	if _, err := s.Topics().GetByID(ctx, bob.UserID, t1.TopicID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-user GetTopic: want ErrNotFound, got %v", err)
	}
	if _, err := s.Topics().Rename(ctx, bob.UserID, t1.TopicID, "stolen"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-user Rename: want ErrNotFound, got %v", err)
	}
	if err := s.Topics().Delete(ctx, bob.UserID, t1.TopicID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("cross-user Delete: want ErrNotFound, got %v", err)
	}

	// newest-first ordering
	lst, err := s.Topics().List(ctx, alice.UserID)
	if err != nil || len(lst) != 2 {
		t.Fatalf("ListTopics: n=%d err=%v", len(lst), err)
	}
	for i := 1; i < len(lst); i++ {
		if lst[i].CreationTime.After(lst[i-1].CreationTime) {
			t.Fatalf("ListTopics: not newest-first at %d", i)
		}
	}
	if got, err := s.Topics().List(ctx, bob.UserID); err != nil || len(got) != 0 {
		t.Fatalf("ListTopics bob: n=%d err=%v", len(got), err)
	}

	// rename
	if out, err := s.Topics().Rename(ctx, alice.UserID, t2.TopicID, "renamed"); err != nil || out.Title != "renamed" {
		t.Fatalf("Rename: got=%v err=%v", out, err)
	}

	// Messages
	m1, err := s.Messages().Create(ctx, &model.Message{TopicID: t1.TopicID, Role: model.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("CreateMessage m1: %v", err)
	}
	m2, err := s.Messages().Create(ctx, &model.Message{TopicID: t1.TopicID, Role: model.RoleAssistant, Content: "hi there"})
	if err != nil {
		t.Fatalf("CreateMessage m2: %v", err)
	}
	// assistant content may be empty
	if _, err := s.Messages().Create(ctx, &model.Message{TopicID: t1.TopicID, Role: model.RoleAssistant, Content: ""}); err != nil {
		t.Fatalf("CreateMessage empty assistant: %v", err)
	}

	msgs, err := s.Messages().List(ctx, model.ListMessagesRequest{UserID: alice.UserID, TopicID: t1.TopicID})
	if err != nil || len(msgs) != 3 {
		t.Fatalf("ListMessages: n=%d err=%v", len(msgs), err)
	}
	if msgs[0].MessageID != m1.MessageID || msgs[1].MessageID != m2.MessageID {
		t.Fatalf("ListMessages: commit order broken: %v %v", msgs[0].MessageID, msgs[1].MessageID)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreationTime.Before(msgs[i-1].CreationTime) {
			t.Fatalf("ListMessages: timestamps decrease at %d", i)
		}
	}
	if got, err := s.Messages().List(ctx, model.ListMessagesRequest{UserID: alice.UserID, TopicID: t1.TopicID, Limit: 2}); err != nil || len(got) != 2 {
		t.Fatalf("ListMessages limit: n=%d err=%v", len(got), err)
	}

	// cascade delete
	if err := s.Topics().Delete(ctx, alice.UserID, t1.TopicID); err != nil {
		t.Fatalf("DeleteTopic: %v", err)
	}
	if _, err := s.Topics().GetByID(ctx, alice.UserID, t1.TopicID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetTopic after delete: want ErrNotFound, got %v", err)
	}
	if got, err := s.Messages().List(ctx, model.ListMessagesRequest{UserID: alice.UserID, TopicID: t1.TopicID}); err != nil || len(got) != 0 {
		t.Fatalf("ListMessages after cascade: n=%d err=%v", len(got), err)
	}

	// Tokens
	tok := &model.Token{Token: uuid.New().String(), UserID: alice.UserID, Kind: model.TokenAccess, ExpiryTime: m1.CreationTime.Add(time.Hour)}
	if err := s.Tokens().Put(ctx, tok); err != nil {
		t.Fatalf("PutToken: %v", err)
	}
	if got, err := s.Tokens().Get(ctx, tok.Token); err != nil || got.UserID != alice.UserID || got.Kind != model.TokenAccess {
		t.Fatalf("GetToken: got=%v err=%v", got, err)
	}
	if err := s.Tokens().DeleteForUser(ctx, alice.UserID, model.TokenAccess); err != nil {
		t.Fatalf("DeleteForUser: %v", err)
	}
	if _, err := s.Tokens().Get(ctx, tok.Token); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetToken after delete: want ErrNotFound, got %v", err)
	}
}
