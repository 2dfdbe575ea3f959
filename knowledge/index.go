package knowledge

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// Index is the Postgres-backed Knowledge Index. Search has no native
// vector extension to delegate to, so it loads the tenant-and-global
// candidate set by tag/scope filter and leaves similarity scoring to the
// caller (retrieval.Layer), which already reranks by cosine similarity;
// this keeps the store itself a plain relational table.
type Index struct {
	db *gorm.DB
}

// Open connects to Postgres at dsn and ensures the knowledge_chunks
// table exists.
func Open(dsn string) (*Index, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "connect knowledge index", err)
	}
	if err := db.AutoMigrate(&Chunk{}); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "migrate knowledge index", err)
	}
	return &Index{db: db}, nil
}

// Search returns candidate chunks visible to tenantID (its own shard
// plus the global shard), optionally narrowed by tags, up to limit rows.
// The caller is expected to rerank by embedding similarity itself.
func (idx *Index) Search(ctx context.Context, tenantID string, vector []float64, tags []string, limit int) ([]Chunk, error) {
	query := idx.db.WithContext(ctx).Where("tenant_id = ? OR tenant_id = ''", tenantID)

	if len(tags) > 0 {
		// Text match on the serialized tags: keep any chunk whose
		// tags::text contains any requested tag (a LIKE substring match);
		// exact matching is refined later by the retrieval layer's
		// tagMatches scoring term.
		like := make([]string, 0, len(tags))
		for _, t := range tags {
			like = append(like, "%"+t+"%")
		}
		cond := idx.db
		for i, pattern := range like {
			if i == 0 {
				cond = idx.db.Where("tags::text LIKE ?", pattern)
				continue
			}
			cond = cond.Or("tags::text LIKE ?", pattern)
		}
		query = query.Where(cond)
	}

	var chunks []Chunk
	if err := query.Order("updated_at DESC").Limit(limit).Find(&chunks).Error; err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "search knowledge chunks", err)
	}
	return chunks, nil
}

// Put upserts a chunk, used by the ingestion pass and by manual curation.
func (idx *Index) Put(ctx context.Context, chunk Chunk) error {
	if chunk.UpdatedAt.IsZero() {
		chunk.UpdatedAt = time.Now()
	}
	if err := idx.db.WithContext(ctx).Save(&chunk).Error; err != nil {
		return apierr.Wrap(apierr.KindTransient, "upsert knowledge chunk", err)
	}
	return nil
}

// Get fetches one chunk by ID, used when composing cited-chunk detail
// for an Intervention.
func (idx *Index) Get(ctx context.Context, id string) (*Chunk, error) {
	var chunk Chunk
	err := idx.db.WithContext(ctx).Where("id = ?", id).First(&chunk).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierr.Wrap(apierr.KindValidation, "chunk not found", apierr.ErrNotFound)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "fetch knowledge chunk", err)
	}
	return &chunk, nil
}
