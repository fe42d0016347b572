package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmark/mindmark-server/internal/model"
)

func TestSearchFormatsMarkdown(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"answer": "Go 1.24 is current.",
			"results": []map[string]string{
				{"title": "Go Blog", "url": "https://go.dev/blog", "content": "Release notes."},
			},
		})
	}))
	defer srv.Close()

	c := NewTavilyClient(srv.URL, "key-123", 6000)
	out, err := c.Search(context.Background(), "latest go release")
	require.NoError(t, err)

	assert.Contains(t, out, "**Answer:** Go 1.24 is current.")
	assert.Contains(t, out, "### [Go Blog](https://go.dev/blog)")

	assert.Equal(t, "key-123", gotBody["api_key"])
	assert.Equal(t, "latest go release", gotBody["query"])
	assert.Equal(t, "advanced", gotBody["search_depth"])
	assert.Equal(t, true, gotBody["include_answer"])
}

func TestSearchErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewTavilyClient(srv.URL, "key", 6000)
	_, err := c.Search(context.Background(), "q")
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestCapTokens(t *testing.T) {
	long := strings.Repeat("abcd", 100)

	assert.Equal(t, long, capTokens(long, 0))
	assert.Equal(t, long, capTokens(long, 100))

	capped := capTokens(long, 10)
	assert.True(t, strings.HasSuffix(capped, "*(results truncated)*"))
	assert.Less(t, len(capped), len(long))

	// multi-byte runes are never split
	multi := strings.Repeat("héllo wörld ", 50)
	for tokens := 1; tokens < 20; tokens++ {
		out := capTokens(multi, tokens)
		assert.True(t, strings.HasPrefix(multi, strings.TrimSuffix(out, "\n\n*(results truncated)*")))
	}
}
