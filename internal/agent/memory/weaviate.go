package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/mindmark/mindmark-server/internal/embeddings"
)

const fragmentClass = "MemoryFragment"

// WeaviateStore keeps memory fragments in a Weaviate class and recalls with
// hybrid (keyword + vector) search.
type WeaviateStore struct {
	client *weaviate.Client
	emb    embeddings.EmbeddingProvider
	alpha  float32
}

// NewWeaviateStore constructs a store against Weaviate at baseURL
// (host:port, no scheme).
func NewWeaviateStore(baseURL string, emb embeddings.EmbeddingProvider) (*WeaviateStore, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &WeaviateStore{client: cl, emb: emb, alpha: 0.6}, nil
}

// Bootstrap ensures the fragment class exists.
func (w *WeaviateStore) Bootstrap(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(fragmentClass).Do(cctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      fragmentClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "fragmentId", DataType: []string{"uuid"}},
			{Name: "sessionKey", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "creationTime", DataType: []string{"date"}},
		},
	}
	return w.client.Schema().ClassCreator().WithClass(class).Do(cctx)
}

func (w *WeaviateStore) Remember(ctx context.Context, sessionKey, content string) error {
	vec, err := w.emb.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed fragment: %w", err)
	}
	id := uuid.New().String()
	payload := map[string]interface{}{
		"fragmentId":   id,
		"sessionKey":   sessionKey,
		"content":      content,
		"creationTime": time.Now().UTC().Format(time.RFC3339),
	}
	_, err = w.client.Data().Creator().
		WithClassName(fragmentClass).
		WithID(id).
		WithProperties(payload).
		WithVector(vec).
		Do(ctx)
	return err
}

func (w *WeaviateStore) Recall(ctx context.Context, sessionKey, query string, limit int) ([]Fragment, error) {
	if limit <= 0 {
		limit = 5
	}
	vec, err := w.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithVector(vec).
		WithAlpha(w.alpha).
		WithProperties([]string{"content"})

	// sessionKey filter is the isolation boundary
	where := filters.Where().WithPath([]string{"sessionKey"}).WithOperator(filters.Equal).WithValueText(sessionKey)

	resp, err := w.client.GraphQL().Get().
		WithClassName(fragmentClass).
		WithWhere(where).
		WithHybrid(hy).
		WithLimit(limit).
		WithFields(
			gql.Field{Name: "fragmentId"},
			gql.Field{Name: "content"},
			gql.Field{Name: "creationTime"},
		).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", resp.Errors[0].Message)
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := getData[fragmentClass].([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]Fragment, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		f := Fragment{SessionKey: sessionKey}
		f.FragmentID, _ = m["fragmentId"].(string)
		f.Content, _ = m["content"].(string)
		if ts, ok := m["creationTime"].(string); ok {
			f.CreationTime, _ = time.Parse(time.RFC3339, ts)
		}
		out = append(out, f)
	}
	return out, nil
}

func (w *WeaviateStore) HealthPing(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("weaviate not ready")
	}
	return nil
}
