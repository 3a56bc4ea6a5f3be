package port

import (
	"context"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
)

// EntityFetcher downloads single ICD-11 foundation entities.
type EntityFetcher interface {
	// FetchEntity returns the decoded entity and the raw response body.
	FetchEntity(ctx context.Context, uri string) (*domain.RawEntity, []byte, error)
}
