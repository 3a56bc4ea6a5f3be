package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

// VectorStore handles pgvector-specific operations for ICD-11 records.
type VectorStore struct {
	store     *PostgresStore
	dimension int
}

// NewVectorStore creates a vector store backed by the given Postgres store.
func NewVectorStore(store *PostgresStore, dimension int) *VectorStore {
	return &VectorStore{store: store, dimension: dimension}
}

// Dimension returns the configured vector length.
func (v *VectorStore) Dimension() int {
	return v.dimension
}

const upsertRecordSQL = `INSERT INTO icd_records (icd_code, position, title, browser_url, source_file, synonyms, content, vector)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
	ON CONFLICT (icd_code, position) DO UPDATE SET
		title = EXCLUDED.title,
		browser_url = EXCLUDED.browser_url,
		source_file = EXCLUDED.source_file,
		synonyms = EXCLUDED.synonyms,
		content = EXCLUDED.content,
		vector = EXCLUDED.vector,
		created_at = NOW()`

const deleteStalePositionsSQL = `DELETE FROM icd_records WHERE icd_code = $1 AND NOT (position = ANY($2))`

// UpsertRecords persists a batch of records in one transaction. Positions of the
// batch's ICD codes that the batch does not carry are deleted first.
func (v *VectorStore) UpsertRecords(ctx context.Context, records []domain.EmbeddedRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != v.dimension {
			return fmt.Errorf("record %s: %w (got %d, want %d)", r.Code, port.ErrDimensionMismatch, len(r.Vector), v.dimension)
		}
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	codes, positions := positionsByCode(records)
	for _, code := range codes {
		if _, err := tx.ExecContext(ctx, deleteStalePositionsSQL, code, pq.Array(positions[code])); err != nil {
			return fmt.Errorf("delete stale records %s: %w", code, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		synonyms := r.Synonyms
		if synonyms == nil {
			synonyms = []string{}
		}
		if _, err := stmt.ExecContext(ctx,
			r.Code, r.Position, r.Title, r.BrowserURL, r.SourceFile, pq.Array(synonyms), r.Content, vectorToString(r.Vector),
		); err != nil {
			return fmt.Errorf("upsert record %s: %w", r.Code, err)
		}
	}

	return tx.Commit()
}

// SearchSimilar performs a cosine similarity search over all records.
func (v *VectorStore) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]domain.SimilarRecord, error) {
	if len(queryVector) != v.dimension {
		return nil, fmt.Errorf("search: %w (got %d, want %d)", port.ErrDimensionMismatch, len(queryVector), v.dimension)
	}
	vectorStr := vectorToString(queryVector)
	query := `SELECT r.id, r.icd_code, r.position, r.title, r.browser_url, r.source_file, r.synonyms, r.content, r.created_at,
	                 1 - (r.vector <=> $1::vector) AS similarity
	          FROM icd_records r
	          ORDER BY r.vector <=> $1::vector
	          LIMIT $2`

	rows, err := v.store.db.QueryContext(ctx, query, vectorStr, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var results []domain.SimilarRecord
	for rows.Next() {
		var sr domain.SimilarRecord
		if err := rows.Scan(
			&sr.ID, &sr.Code, &sr.Position, &sr.Title, &sr.BrowserURL, &sr.SourceFile,
			pq.Array(&sr.Synonyms), &sr.Content, &sr.CreatedAt, &sr.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}

// CountRecords returns the number of stored records.
func (v *VectorStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := v.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM icd_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// DeleteAll removes every record.
func (v *VectorStore) DeleteAll(ctx context.Context) error {
	_, err := v.store.db.ExecContext(ctx, `DELETE FROM icd_records`)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// positionsByCode groups batch positions per ICD code, codes in first-seen order.
func positionsByCode(records []domain.EmbeddedRecord) ([]string, map[string][]int64) {
	var codes []string
	positions := make(map[string][]int64)
	for _, r := range records {
		if _, ok := positions[r.Code]; !ok {
			codes = append(codes, r.Code)
		}
		positions[r.Code] = append(positions[r.Code], int64(r.Position))
	}
	return codes, positions
}

// vectorToString converts a float32 slice to pgvector string format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
