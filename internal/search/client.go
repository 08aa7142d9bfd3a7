// Package search abstracts the vector similarity index holding procedure
// document chunks. The pipeline treats it as a black-box nearest-neighbor
// search behind the Client interface.
package search

import "context"

// Chunk is one indexed fragment of a procedure document as returned by the
// similarity index. Distance is the raw vector distance (lower is closer);
// the retriever converts it to a similarity score.
type Chunk struct {
	DocumentID    string
	DocumentTitle string
	Text          string
	ChunkType     string
	StepNumber    *int
	Distance      float64
}

// Client defines the interface to the similarity index.
type Client interface {
	// Search returns up to limit chunks nearest to the query text, closest
	// first. An empty result slice with a nil error means nothing relevant
	// was indexed; an error means the backend itself failed.
	Search(ctx context.Context, query string, limit int) ([]Chunk, error)
}
