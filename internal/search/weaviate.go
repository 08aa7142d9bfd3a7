package search

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"

	"github.com/fsalinas26/Guido/internal/logging"
)

// WeaviateClient implements Client against a Weaviate instance holding
// procedure chunks. Expected class properties: document_id, document_title,
// chunk_text, chunk_type, step_number.
type WeaviateClient struct {
	client *weaviate.Client
	class  string
	logger *logging.Logger
}

// NewWeaviateClient creates a similarity search client for the given
// Weaviate host and chunk class.
func NewWeaviateClient(scheme, host, class string) (*WeaviateClient, error) {
	client, err := weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: host})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return &WeaviateClient{
		client: client,
		class:  class,
		logger: logging.GetLogger("search.weaviate"),
	}, nil
}

// Search implements Client.Search using a nearText GraphQL query.
func (w *WeaviateClient) Search(ctx context.Context, query string, limit int) ([]Chunk, error) {
	fields := []graphql.Field{
		{Name: "document_id"},
		{Name: "document_title"},
		{Name: "chunk_text"},
		{Name: "chunk_type"},
		{Name: "step_number"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	nearText := w.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})

	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query returned error: %s", resp.Errors[0].Message)
	}

	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("weaviate response missing Get section")
	}
	objects, ok := get[w.class].([]interface{})
	if !ok {
		// A class with no objects comes back as null.
		return nil, nil
	}

	chunks := make([]Chunk, 0, len(objects))
	for _, obj := range objects {
		props, ok := obj.(map[string]interface{})
		if !ok {
			w.logger.Warn("skipping malformed search hit of type %T", obj)
			continue
		}
		chunk := Chunk{
			DocumentID:    stringProp(props, "document_id"),
			DocumentTitle: stringProp(props, "document_title"),
			Text:          stringProp(props, "chunk_text"),
			ChunkType:     stringProp(props, "chunk_type"),
		}
		if n, ok := numberProp(props, "step_number"); ok {
			step := int(n)
			chunk.StepNumber = &step
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := numberProp(additional, "distance"); ok {
				chunk.Distance = d
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func stringProp(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func numberProp(props map[string]interface{}, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
