package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// Embedder turns chunk text into its embedding vector; knowledge does
// not pick a provider, it only calls whatever llm.Client the ingestion
// CLI wires in.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Document is one source document the ingestion pass splits into
// Chunks. The corpus's own on-disk format is out of scope — callers are
// responsible for turning it into Documents before calling Ingest.
type Document struct {
	TenantID string
	Title    string
	Body     string
	Tags     []string
}

// Ingest splits doc into chunks, embeds each with embedder, and upserts
// them into the index. It returns the number of chunks written.
func (idx *Index) Ingest(ctx context.Context, doc Document, embedder Embedder) (int, error) {
	sections := splitSections(doc.Body)
	written := 0

	for _, section := range sections {
		vector, err := embedder.Embed(ctx, section)
		if err != nil {
			return written, apierr.Wrap(apierr.KindDegraded, "embed chunk", err)
		}

		chunk := Chunk{
			ID:        chunkID(doc.TenantID, doc.Title, section),
			TenantID:  doc.TenantID,
			Title:     doc.Title,
			Body:      section,
			Tags:      StringSlice(doc.Tags),
			Embedding: FloatSlice(vector),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := idx.Put(ctx, chunk); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}

// splitSections breaks a document body on blank-line boundaries,
// discarding empty fragments — a deliberately simple splitter since the
// corpus format itself is out of scope.
func splitSections(body string) []string {
	raw := strings.Split(body, "\n\n")
	sections := make([]string, 0, len(raw))
	for _, s := range raw {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			sections = append(sections, trimmed)
		}
	}
	return sections
}

func chunkID(tenantID, title, section string) string {
	h := sha256.Sum256([]byte(tenantID + "\x00" + title + "\x00" + section))
	return hex.EncodeToString(h[:16])
}
