package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofircohen205/aura-sub001/knowledge"
)

type fakeEmbedder struct {
	calls  int
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeIndex struct {
	chunks []knowledge.Chunk
}

func (f *fakeIndex) Search(ctx context.Context, tenantID string, vector []float64, tags []string, limit int) ([]knowledge.Chunk, error) {
	if limit < len(f.chunks) {
		return f.chunks[:limit], nil
	}
	return f.chunks, nil
}

func TestEmbedMemoizesByTenantAndText(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float64{1, 0}}
	layer, err := NewLayer(embedder, &fakeIndex{}, 16, 5)
	require.NoError(t, err)

	_, err = layer.Embed(context.Background(), "tenant-1", "same query")
	require.NoError(t, err)
	_, err = layer.Embed(context.Background(), "tenant-1", "same query")
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls)
}

func TestEmbedDoesNotShareCacheAcrossTenants(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float64{1, 0}}
	layer, err := NewLayer(embedder, &fakeIndex{}, 16, 5)
	require.NoError(t, err)

	_, err = layer.Embed(context.Background(), "tenant-1", "same query")
	require.NoError(t, err)
	_, err = layer.Embed(context.Background(), "tenant-2", "same query")
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.calls)
}

func TestSearchRanksBySimilarityDescending(t *testing.T) {
	now := time.Now()
	index := &fakeIndex{chunks: []knowledge.Chunk{
		{ID: "c1", Embedding: knowledge.FloatSlice{0, 1}, UpdatedAt: now},
		{ID: "c2", Embedding: knowledge.FloatSlice{1, 0}, UpdatedAt: now},
	}}
	embedder := &fakeEmbedder{vector: []float64{1, 0}}
	layer, err := NewLayer(embedder, index, 16, 5)
	require.NoError(t, err)

	result, err := layer.Search(context.Background(), Query{TenantID: "tenant-1", Text: "q", AsOf: now})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "c2", result.Chunks[0].Chunk.ID)
	assert.Equal(t, 1, result.Chunks[0].Rank)
	assert.Equal(t, "c1", result.Chunks[1].Chunk.ID)
}

func TestSearchRespectsTopK(t *testing.T) {
	now := time.Now()
	index := &fakeIndex{chunks: []knowledge.Chunk{
		{ID: "c1", Embedding: knowledge.FloatSlice{1, 0}, UpdatedAt: now},
		{ID: "c2", Embedding: knowledge.FloatSlice{1, 0}, UpdatedAt: now},
		{ID: "c3", Embedding: knowledge.FloatSlice{1, 0}, UpdatedAt: now},
	}}
	layer, err := NewLayer(&fakeEmbedder{vector: []float64{1, 0}}, index, 16, 5)
	require.NoError(t, err)

	result, err := layer.Search(context.Background(), Query{TenantID: "tenant-1", Text: "q", TopK: 1, AsOf: now})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 1)
}

func TestRerankTieBreaksByChunkIDAscending(t *testing.T) {
	now := time.Now()
	layer, err := NewLayer(&fakeEmbedder{}, &fakeIndex{}, 16, 5)
	require.NoError(t, err)

	chunks := []knowledge.Chunk{
		{ID: "zzz", Embedding: nil, UpdatedAt: now},
		{ID: "aaa", Embedding: nil, UpdatedAt: now},
	}
	ranked := layer.rerank(chunks, Query{AsOf: now}, nil)

	require.Len(t, ranked, 2)
	assert.Equal(t, "aaa", ranked[0].Chunk.ID)
	assert.Equal(t, "zzz", ranked[1].Chunk.ID)
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 0.0001)
}

func TestCosineSimilarityOrthogonalVectorsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}))
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{1}))
}
