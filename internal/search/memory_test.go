package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexSearch(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Add(Chunk{DocumentID: "DOC-1", Text: "measure the defect depth on the rotor"})
	idx.Add(Chunk{DocumentID: "DOC-2", Text: "replace the hydraulic filter"})

	chunks, err := idx.Search(context.Background(), "defect depth", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "DOC-1", chunks[0].DocumentID)
	assert.Less(t, chunks[0].Distance, 1.0)
}

func TestMemoryIndexEmptyQuery(t *testing.T) {
	idx := NewDemoIndex()
	chunks, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMemoryIndexLimit(t *testing.T) {
	idx := NewDemoIndex()
	chunks, err := idx.Search(context.Background(), "surface defect", 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(chunks), 3)
}

func TestDemoIndexMatchesQualityComplaint(t *testing.T) {
	idx := NewDemoIndex()
	chunks, err := idx.Search(context.Background(), "I'm seeing scratches on these brake rotors from Line 3", 10)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// The defect evaluation procedure must dominate the result set.
	count := 0
	for _, c := range chunks {
		if c.DocumentID == "SOP-QC-015" {
			count++
		}
	}
	assert.Greater(t, count, len(chunks)/2)
}
