package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmark/mindmark-server/internal/auth"
	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/services"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/store/sqlite"
)

// echoAgent replies with a fixed prefix so tests can tell replies apart.
type echoAgent struct{}

func (echoAgent) Run(_ context.Context, userText string) (string, error) {
	return "echo: " + userText, nil
}

type echoAgents struct{ err error }

func (a echoAgents) Get(context.Context, session.Key) (services.Agent, error) {
	if a.err != nil {
		return nil, a.err
	}
	return echoAgent{}, nil
}
func (echoAgents) Invalidate(session.Key) {}

type fixture struct {
	srv *httptest.Server
}

func newFixture(t *testing.T, agents services.Agents) *fixture {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "api.sqlite3"))
	require.NoError(t, err)

	issuer := auth.NewTokenIssuer(st, time.Hour, 24*time.Hour)
	deps := Deps{
		Users:      services.NewUserService(st),
		Topics:     services.NewTopicService(st, agents),
		Messages:   services.NewMessageService(st),
		Turns:      services.NewTurnService(st, session.NewResolver(st), agents, zerolog.Nop()),
		Issuer:     issuer,
		Authorizer: auth.NewTokenAuthorizer(st),
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// registerAndLogin creates an account and returns an access token.
func (f *fixture) registerAndLogin(t *testing.T, username string) string {
	t.Helper()
	resp, _ := f.do(t, "POST", "/api/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, "POST", "/api/token", "", map[string]string{
		"username": username,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["access"].(string)
	require.NotEmpty(t, token)
	return token
}

func (f *fixture) createTopic(t *testing.T, token, title string) string {
	t.Helper()
	resp, body := f.do(t, "POST", "/api/topics", token, map[string]string{"title": title})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["topicId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestRegisterLoginAndRefresh(t *testing.T) {
	f := newFixture(t, echoAgents{})

	resp, body := f.do(t, "POST", "/api/register", "", map[string]string{
		"username": "ada", "email": "ada@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ada", body["username"])
	assert.NotContains(t, body, "passwordHash")

	// duplicate username conflicts
	resp, _ = f.do(t, "POST", "/api/register", "", map[string]string{
		"username": "ada", "email": "ada2@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// wrong password
	resp, _ = f.do(t, "POST", "/api/token", "", map[string]string{
		"username": "ada", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = f.do(t, "POST", "/api/token", "", map[string]string{
		"username": "ada", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refresh, _ := body["refresh"].(string)
	require.NotEmpty(t, refresh)

	resp, body = f.do(t, "POST", "/api/token/refresh", "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["access"])

	// an access token is not a refresh token
	access, _ := body["access"].(string)
	resp, _ = f.do(t, "POST", "/api/token/refresh", "", map[string]string{"refresh": access})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Django-style clients append trailing slashes to every path.
func TestTrailingSlashRoutes(t *testing.T) {
	f := newFixture(t, echoAgents{})

	resp, _ := f.do(t, "POST", "/api/register/", "", map[string]string{
		"username": "ada", "email": "ada@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, "POST", "/api/token/", "", map[string]string{
		"username": "ada", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["access"].(string)
	require.NotEmpty(t, token)

	resp, _ = f.do(t, "POST", "/api/topics/", token, map[string]string{"title": "t"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestTopicLifecycle(t *testing.T) {
	f := newFixture(t, echoAgents{})
	token := f.registerAndLogin(t, "ada")

	// unauthorized without a token
	resp, _ := f.do(t, "GET", "/api/topics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	id := f.createTopic(t, token, "Research")

	resp, body := f.do(t, "GET", "/api/topics/"+id, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Research", body["title"])

	resp, body = f.do(t, "PATCH", "/api/topics/"+id, token, map[string]string{"title": "Lab"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Lab", body["title"])

	// PUT renames as well
	resp, body = f.do(t, "PUT", "/api/topics/"+id, token, map[string]string{"title": "Field"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Field", body["title"])

	resp, body = f.do(t, "GET", "/api/topics", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = f.do(t, "DELETE", "/api/topics/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/api/topics/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTopicsOrderedNewestFirst(t *testing.T) {
	f := newFixture(t, echoAgents{})
	token := f.registerAndLogin(t, "ada")

	for i := 0; i < 3; i++ {
		f.createTopic(t, token, fmt.Sprintf("topic-%d", i))
		time.Sleep(5 * time.Millisecond)
	}

	resp, body := f.do(t, "GET", "/api/topics", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	topics := body["topics"].([]interface{})
	require.Len(t, topics, 3)
	assert.Equal(t, "topic-2", topics[0].(map[string]interface{})["title"])
	assert.Equal(t, "topic-0", topics[2].(map[string]interface{})["title"])
}

func TestCrossUserTopicIs404(t *testing.T) {
	f := newFixture(t, echoAgents{})
	ownerTok := f.registerAndLogin(t, "owner")
	otherTok := f.registerAndLogin(t, "other")

	id := f.createTopic(t, ownerTok, "private")

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/topics/" + id},
		{"PATCH", "/api/topics/" + id},
		{"DELETE", "/api/topics/" + id},
		{"GET", "/api/topics/" + id + "/messages"},
		{"POST", "/api/topics/" + id + "/messages"},
		{"POST", "/api/topics/" + id + "/chat"},
	} {
		var body interface{}
		switch tc.method {
		case "PATCH":
			body = map[string]string{"title": "x"}
		case "POST":
			body = map[string]string{"user_message": "x"}
		}
		resp, _ := f.do(t, tc.method, tc.path, otherTok, body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestChatTurnAndTranscript(t *testing.T) {
	f := newFixture(t, echoAgents{})
	token := f.registerAndLogin(t, "ada")
	id := f.createTopic(t, token, "chat")

	resp, body := f.do(t, "POST", "/api/topics/"+id+"/chat", token, map[string]string{"user_message": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "echo: hello", body["agent_response"])

	resp, body = f.do(t, "GET", "/api/topics/"+id+"/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]interface{})
	second := msgs[1].(map[string]interface{})
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "hello", first["content"])
	assert.Equal(t, "assistant", second["role"])
	assert.Equal(t, "echo: hello", second["content"])
}

// Posting to the messages collection runs a turn and returns the created
// user message together with the agent's reply.
func TestCreateMessageRunsTurn(t *testing.T) {
	f := newFixture(t, echoAgents{})
	token := f.registerAndLogin(t, "ada")
	id := f.createTopic(t, token, "trip")

	resp, body := f.do(t, "POST", "/api/topics/"+id+"/messages", token, map[string]string{
		"user_message": "Find flights to Rome",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user", body["role"])
	assert.Equal(t, "Find flights to Rome", body["content"])
	assert.Equal(t, "echo: Find flights to Rome", body["agent_response"])

	resp, body = f.do(t, "GET", "/api/topics/"+id+"/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]interface{})["role"])
}

// Surrounding whitespace is stripped before the message is recorded.
func TestChatTrimsUserMessage(t *testing.T) {
	f := newFixture(t, echoAgents{})
	token := f.registerAndLogin(t, "ada")
	id := f.createTopic(t, token, "chat")

	resp, _ := f.do(t, "POST", "/api/topics/"+id+"/chat", token, map[string]string{"user_message": "  hello  "})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, "GET", "/api/topics/"+id+"/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].(map[string]interface{})["content"])
}

func TestChatValidationAndLimits(t *testing.T) {
	f := newFixture(t, echoAgents{})
	token := f.registerAndLogin(t, "ada")
	id := f.createTopic(t, token, "chat")

	resp, _ := f.do(t, "POST", "/api/topics/"+id+"/chat", token, map[string]string{"user_message": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/api/topics/"+id+"/messages?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := 0; i < 3; i++ {
		r, _ := f.do(t, "POST", "/api/topics/"+id+"/chat", token, map[string]string{"user_message": fmt.Sprintf("m%d", i)})
		require.Equal(t, http.StatusOK, r.StatusCode)
	}
	resp, body := f.do(t, "GET", "/api/topics/"+id+"/messages?limit=2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["count"])
}

func TestChatUnavailableAgentIs503(t *testing.T) {
	f := newFixture(t, echoAgents{err: fmt.Errorf("agent backends down: %w", model.ErrUnavailable)})
	token := f.registerAndLogin(t, "ada")
	id := f.createTopic(t, token, "chat")

	resp, _ := f.do(t, "POST", "/api/topics/"+id+"/chat", token, map[string]string{"user_message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, echoAgents{})
	BindServiceHealth(func() bool { return true })
	t.Cleanup(func() { BindServiceHealth(func() bool { return false }) })

	resp, body := f.do(t, "GET", "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}
