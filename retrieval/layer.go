// Package retrieval implements the Knowledge Retrieval Layer: embed a
// query, search the Knowledge Index for similar chunks, and rerank the
// candidates before returning a top-K slice.
package retrieval

import (
	"context"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/knowledge"
)

// SimilarChunk pairs a KnowledgeChunk with its similarity to the query
// and its final rank after reranking.
type SimilarChunk struct {
	Chunk      knowledge.Chunk
	Similarity float64
	Rank       int
}

// Query describes a retrieval request.
type Query struct {
	TenantID   string
	Text       string
	Tags       []string
	TopK       int
	AsOf       time.Time
}

// Result is what Search returns.
type Result struct {
	Chunks     []SimilarChunk
	SearchTime time.Duration
}

// Embedder turns text into a vector against an external embedding
// provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Index is the subset of knowledge.Index the retrieval layer depends on,
// kept as an interface so tests can substitute an in-memory fake.
type Index interface {
	Search(ctx context.Context, tenantID string, vector []float64, tags []string, limit int) ([]knowledge.Chunk, error)
}

// Layer ties an Embedder and an Index together with a bounded memoization
// cache for embeddings, since re-embedding the same query text within a
// session (e.g. a repeated struggle window for the same error) is pure
// waste.
type Layer struct {
	embedder Embedder
	index    Index
	cache    *lru.Cache[string, []float64]
	topK     int

	// Scoring weights for the rerank step: w1*similarity + w2*tagMatches
	// + w3*recencyDecay, ties broken by chunk ID ascending for
	// determinism.
	w1, w2, w3 float64
}

// NewLayer creates a Layer. cacheSize bounds the embedding memoization
// cache; defaultTopK is used when a Query leaves TopK unset.
func NewLayer(embedder Embedder, index Index, cacheSize, defaultTopK int) (*Layer, error) {
	cache, err := lru.New[string, []float64](cacheSize)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &Layer{
		embedder: embedder,
		index:    index,
		cache:    cache,
		topK:     defaultTopK,
		w1:       0.7,
		w2:       0.2,
		w3:       0.1,
	}, nil
}

func (l *Layer) cacheKey(tenantID, text string) string { return tenantID + "\x00" + text }

// Embed returns text's embedding, memoized per (tenant, text).
func (l *Layer) Embed(ctx context.Context, tenantID, text string) ([]float64, error) {
	key := l.cacheKey(tenantID, text)
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDegraded, "embed query", err)
	}
	l.cache.Add(key, vec)
	return vec, nil
}

// Search embeds q.Text, queries the index, and reranks the candidates.
func (l *Layer) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	topK := q.TopK
	if topK <= 0 {
		topK = l.topK
	}

	vector, err := l.Embed(ctx, q.TenantID, q.Text)
	if err != nil {
		return nil, err
	}

	candidates, err := l.index.Search(ctx, q.TenantID, vector, q.Tags, topK*3)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "search knowledge index", err)
	}

	ranked := l.rerank(candidates, q, vector)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	return &Result{Chunks: ranked, SearchTime: time.Since(start)}, nil
}

func (l *Layer) rerank(chunks []knowledge.Chunk, q Query, queryVector []float64) []SimilarChunk {
	scored := make([]SimilarChunk, 0, len(chunks))
	scores := make(map[string]float64, len(chunks))
	now := time.Now()
	if !q.AsOf.IsZero() {
		now = q.AsOf
	}

	for _, c := range chunks {
		similarity := cosineSimilarity(queryVector, c.Embedding)
		tagMatches := float64(countMatches(c.Tags, q.Tags))
		ageDays := now.Sub(c.UpdatedAt).Hours() / 24
		recency := 1.0 / (1.0 + ageDays/30.0)

		score := l.w1*similarity + l.w2*tagMatches + l.w3*recency
		scored = append(scored, SimilarChunk{Chunk: c, Similarity: similarity, Rank: 0})
		scores[c.ID] = score
	}

	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := scores[scored[i].Chunk.ID], scores[scored[j].Chunk.ID]
		if si != sj {
			return si > sj
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

func countMatches(have, want []string) int {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range want {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
