package port

import (
	"context"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
)

// RecordStore persists embedded ICD-11 records and runs similarity search.
// Implementations must reject vectors whose length differs from Dimension.
type RecordStore interface {
	// Dimension returns the fixed vector length of the store.
	Dimension() int

	// UpsertRecords stores the batch as the complete record set of every ICD code it
	// contains: records keyed by (code, position) are inserted or replaced and stored
	// positions of those codes that are absent from the batch are removed.
	UpsertRecords(ctx context.Context, records []domain.EmbeddedRecord) error

	// SearchSimilar returns the limit records closest to the query vector (cosine).
	SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]domain.SimilarRecord, error)

	// CountRecords returns the number of stored records.
	CountRecords(ctx context.Context) (int, error)

	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error
}

// Flusher is implemented by stores that buffer writes in memory.
type Flusher interface {
	Flush(ctx context.Context) error
}

// AnswerCache stores serialized answers keyed by normalized question.
type AnswerCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}
