package search

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex implements Client with naive keyword-overlap scoring over an
// in-memory chunk set. It backs demo mode and tests, where a real vector
// backend is unavailable.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []Chunk
	// keywords maps extra search terms onto chunk indexes, so demo chunks
	// can match vocabulary that does not appear verbatim in their text.
	keywords map[int][]string
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{keywords: make(map[int][]string)}
}

// Add indexes a chunk with optional extra keywords.
func (m *MemoryIndex) Add(chunk Chunk, extraKeywords ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunk)
	if len(extraKeywords) > 0 {
		m.keywords[len(m.chunks)-1] = extraKeywords
	}
}

// Search implements Client.Search. Chunks are scored by the fraction of
// query terms appearing in their text (or extra keywords); zero-score
// chunks are omitted.
func (m *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	type scored struct {
		chunk Chunk
		score float64
		order int
	}
	var hits []scored
	for i, chunk := range m.chunks {
		haystack := strings.ToLower(chunk.Text + " " + chunk.DocumentTitle)
		for _, kw := range m.keywords[i] {
			haystack += " " + strings.ToLower(kw)
		}
		matched := 0
		for _, term := range terms {
			if strings.Contains(haystack, strings.Trim(term, ".,!?'\"")) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(terms))
		c := chunk
		c.Distance = 1 - score
		hits = append(hits, scored{chunk: c, score: score, order: i})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.chunk
	}
	return out, nil
}

// NewDemoIndex returns a MemoryIndex seeded with the surface defect
// evaluation procedure, enough for end-to-end demo conversations.
func NewDemoIndex() *MemoryIndex {
	idx := NewMemoryIndex()
	const (
		docID    = "SOP-QC-015"
		docTitle = "Surface Defect Evaluation and Quarantine Protocol"
	)
	steps := []struct {
		n         int
		text      string
		chunkType string
	}{
		{1, "Visually inspect the brake rotor surface under direct light and note the location and pattern of any scratches, pits, or gouges.", "step"},
		{2, "Measure the defect depth at the deepest point using the calibrated surface roughness gauge.", "step"},
		{3, "Check overall surface roughness at 3 to 5 points across the rotor face. The average Ra must be below 1.6 micrometers.", "step"},
		{4, "Compare the measured defect depth against the 0.02mm tolerance limit. Depth above tolerance requires quarantine.", "decision"},
		{5, "Document the disposition. Quarantined parts are tagged and moved to the hold area; accepted parts proceed with a note in the batch record.", "step"},
	}
	for _, s := range steps {
		step := s.n
		idx.Add(Chunk{
			DocumentID:    docID,
			DocumentTitle: docTitle,
			Text:          s.text,
			ChunkType:     s.chunkType,
			StepNumber:    &step,
		}, "scratches", "surface", "defect", "brake", "rotors", "quality")
	}
	idx.Add(Chunk{
		DocumentID:    docID,
		DocumentTitle: docTitle,
		Text:          "Random pitting deeper than 0.02mm requires quarantine and an engineering review before the batch can be released.",
		ChunkType:     "warning",
	}, "pitting", "random", "quarantine")

	idx.Add(Chunk{
		DocumentID:    "SOP-EQ-007",
		DocumentTitle: "Surface Roughness Gauge Calibration",
		Text:          "Calibrate the surface roughness gauge against the reference specimen at the start of each shift.",
		ChunkType:     "requirement",
	}, "gauge", "calibration", "equipment")
	return idx
}
