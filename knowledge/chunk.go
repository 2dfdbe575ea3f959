// Package knowledge implements the Knowledge Index: the Postgres-backed
// store of KnowledgeChunk rows the Knowledge Retrieval Layer searches,
// and the ingestion path that turns source lesson material into rows.
package knowledge

import "time"

// Chunk is one retrievable unit of the Knowledge Index: a chunk of
// golden-path documentation or an error-pattern lesson, carrying the
// embedding vector the retrieval layer reranks against.
//
// A chunk belongs to exactly one tenant's shard unless TenantID is
// empty, which marks it part of the global shard every tenant can read.
type Chunk struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	TenantID  string    `gorm:"index"`
	Title     string
	Body      string
	Tags      StringSlice `gorm:"type:jsonb"`
	Embedding FloatSlice  `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// TableName pins the table name regardless of Go naming conventions
// applied to future renames of the Chunk type.
func (Chunk) TableName() string { return "knowledge_chunks" }
