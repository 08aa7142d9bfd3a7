// Package retriever finds the procedure document most relevant to a worker
// utterance. It queries the similarity index for nearest chunks, groups them
// by parent document, and ranks documents by chunk count.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fsalinas26/Guido/internal/config"
	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
	"github.com/fsalinas26/Guido/internal/search"
)

// cacheSize bounds the query result cache. Workers repeat themselves on
// noisy factory floors; identical search text within a shift hits the cache.
const cacheSize = 128

// Retriever queries the similarity index and assembles procedure context.
type Retriever struct {
	client   search.Client
	settings config.RetrievalSettings
	timeout  time.Duration
	cache    *lru.Cache[string, models.RetrievalResult]
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// New creates a retriever over the given similarity search client.
func New(client search.Client, settings config.RetrievalSettings, timeout time.Duration, m *metrics.Metrics) *Retriever {
	cache, _ := lru.New[string, models.RetrievalResult](cacheSize)
	return &Retriever{
		client:   client,
		settings: settings,
		timeout:  timeout,
		cache:    cache,
		metrics:  m,
		logger:   logging.GetLogger("agent.retriever"),
	}
}

// Retrieve searches for chunks relevant to the utterance, enriched with
// entities extracted by the classifier. Empty results return the NONE
// sentinel; a search backend failure returns the configured fallback
// document on a distinct, observable path (Fallback true).
func (r *Retriever) Retrieve(ctx context.Context, utterance string, intent models.IntentResult) models.RetrievalResult {
	query := buildQuery(utterance, intent)

	if cached, ok := r.cache.Get(query); ok {
		r.logger.Debug("cache hit for query %q", query)
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	chunks, err := r.client.Search(ctx, query, r.settings.Limit)
	if err != nil {
		r.logger.WarnWithFields("similarity search failed, serving fallback document",
			logging.Field("query", query),
			logging.Field("error", err),
		)
		if r.metrics != nil {
			r.metrics.FallbacksTotal.WithLabelValues("retriever").Inc()
		}
		return models.RetrievalResult{
			DocumentID:    r.settings.FallbackDocumentID,
			DocumentTitle: r.settings.FallbackDocumentTitle,
			Chunks:        []models.RetrievedChunk{},
			Context:       r.settings.FallbackContext,
			Fallback:      true,
		}
	}
	if len(chunks) == 0 {
		return models.RetrievalResult{
			DocumentID:    models.NoDocumentID,
			DocumentTitle: "No relevant procedure found",
			Chunks:        []models.RetrievedChunk{},
		}
	}

	result := rank(chunks)
	r.logger.DebugWithFields("retrieved procedure",
		logging.Field("document_id", result.DocumentID),
		logging.Field("chunks", len(result.Chunks)),
	)
	r.cache.Add(query, result)
	return result
}

// buildQuery enriches the utterance with classifier-extracted entities.
func buildQuery(utterance string, intent models.IntentResult) string {
	query := utterance
	if part := intent.ExtractedEntities["part_type"]; part != "" {
		query += " " + part
	}
	if issue := intent.ExtractedEntities["issue_type"]; issue != "" {
		query += " " + issue
	}
	return query
}

// rank groups chunks by parent document, selects the group with the
// strictly greatest chunk count (relevance by volume, deliberately not by
// aggregate similarity), orders the chosen group by step number, and
// assembles the textual context.
func rank(chunks []search.Chunk) models.RetrievalResult {
	type group struct {
		id     string
		title  string
		chunks []search.Chunk
	}
	index := make(map[string]*group)
	var order []*group
	for _, c := range chunks {
		g, ok := index[c.DocumentID]
		if !ok {
			g = &group{id: c.DocumentID, title: c.DocumentTitle}
			index[c.DocumentID] = g
			order = append(order, g)
		}
		g.chunks = append(g.chunks, c)
	}

	// Largest group wins; on a tie the group seen first in the result set
	// keeps its position, making the ranking independent of map iteration.
	primary := order[0]
	for _, g := range order[1:] {
		if len(g.chunks) > len(primary.chunks) {
			primary = g
		}
	}

	ordered := orderChunks(primary.chunks)
	return models.RetrievalResult{
		DocumentID:    primary.id,
		DocumentTitle: primary.title,
		Chunks:        ordered,
		Context:       assembleContext(ordered),
	}
}

// orderChunks sorts ascending by step number with missing steps last. The
// sort is stable: ties and step-less chunks preserve their original order.
func orderChunks(chunks []search.Chunk) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = models.RetrievedChunk{
			StepNumber: c.StepNumber,
			Text:       c.Text,
			ChunkType:  c.ChunkType,
			Similarity: 1 - c.Distance,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].StepNumber, out[j].StepNumber
		switch {
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return *si < *sj
		}
	})
	return out
}

// assembleContext concatenates chunks with step or section labels.
func assembleContext(chunks []models.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		label := fmt.Sprintf("Section %d", i+1)
		if c.StepNumber != nil {
			label = fmt.Sprintf("Step %d", *c.StepNumber)
		}
		parts[i] = fmt.Sprintf("%s: %s", label, c.Text)
	}
	return strings.Join(parts, "\n\n")
}
