package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmark/mindmark-server/internal/model"
)

func TestCompleteDecodesAssistantReply(t *testing.T) {
	var gotReq map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"role": "assistant", "content": "hi there"}},
			},
		})
	}))
	defer srv.Close()

	c := NewGroqClient(srv.URL, "test-key")
	out, err := c.Complete(context.Background(), "gemma2-9b-it", []Message{{Role: "user", Content: "hello"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Content)
	assert.Equal(t, "gemma2-9b-it", gotReq["model"])
}

func TestCompleteDecodesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{
					"role": "assistant",
					"tool_calls": []map[string]interface{}{
						{
							"id":   "call-1",
							"type": "function",
							"function": map[string]string{
								"name":      "web_search",
								"arguments": `{"query":"go"}`,
							},
						},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewGroqClient(srv.URL, "k")
	out, err := c.Complete(context.Background(), "m", nil, nil)
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "web_search", out.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"query":"go"}`, out.ToolCalls[0].Function.Arguments)
}

func TestCompleteServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewGroqClient(srv.URL, "k")
	_, err := c.Complete(context.Background(), "m", nil, nil)
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestCompleteClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewGroqClient(srv.URL, "k")
	_, err := c.Complete(context.Background(), "m", nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrUnavailable)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	c := NewGroqClient(srv.URL, "k")
	out, err := c.Complete(context.Background(), "m", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "assistant", out.Role)
	assert.Empty(t, out.Content)
}
