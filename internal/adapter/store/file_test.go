package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

func record(code string, vec ...float32) domain.EmbeddedRecord {
	return domain.EmbeddedRecord{Code: code, Title: "Title " + code, Content: "Title: " + code, Vector: vec}
}

func TestFileStore_UpsertSearchPersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "records.json")

	s := NewFileStore(path, 2)
	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{
		record("A", 1, 0),
		record("B", 0, 1),
		record("C", 0.7, 0.7),
	}))

	hits, err := s.SearchSimilar(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "A", hits[0].Code)
	assert.Equal(t, "C", hits[1].Code)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)

	require.NoError(t, s.Flush(ctx))
	reloaded := NewFileStore(path, 2)
	require.NoError(t, reloaded.Load())
	n, err := reloaded.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFileStore_UpsertReplacesSameKey(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "records.json"), 2)

	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{record("A", 1, 0)}))
	updated := record("A", 0, 1)
	updated.Title = "Renamed"
	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{updated}))

	n, _ := s.CountRecords(ctx)
	assert.Equal(t, 1, n)

	hits, err := s.SearchSimilar(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", hits[0].Title)
	assert.Equal(t, "1", hits[0].ID)
}

func TestFileStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "records.json"), 3)

	err := s.UpsertRecords(ctx, []domain.EmbeddedRecord{record("A", 1, 0)})
	assert.ErrorIs(t, err, port.ErrDimensionMismatch)

	_, err = s.SearchSimilar(ctx, []float32{1}, 4)
	assert.ErrorIs(t, err, port.ErrDimensionMismatch)
}

func TestFileStore_LoadRejectsOtherDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")
	s := NewFileStore(path, 2)
	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{record("A", 1, 0)}))
	require.NoError(t, s.Flush(ctx))

	err := NewFileStore(path, 4).Load()
	assert.ErrorIs(t, err, port.ErrDimensionMismatch)
}

func TestFileStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")
	s := NewFileStore(path, 2)
	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{record("A", 1, 0)}))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.DeleteAll(ctx))
	require.NoError(t, s.Flush(ctx))

	reloaded := NewFileStore(path, 2)
	require.NoError(t, reloaded.Load())
	n, _ := reloaded.CountRecords(ctx)
	assert.Zero(t, n)
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), 2)
	assert.NoError(t, s.Load())
}

func chunk(code string, position int, vec ...float32) domain.EmbeddedRecord {
	r := record(code, vec...)
	r.Position = position
	return r
}

func TestFileStore_UpsertDropsPositionsMissingFromBatch(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "records.json"), 2)

	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{
		chunk("A", 0, 1, 0),
		chunk("A", 1, 1, 0),
		chunk("A", 2, 1, 0),
		chunk("B", 0, 0, 1),
	}))
	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{chunk("A", 0, 0.5, 0.5)}))

	n, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "A keeps only position 0, B is untouched")

	hits, err := s.SearchSimilar(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	codes := map[string]int{}
	for _, h := range hits {
		codes[h.Code]++
		assert.Zero(t, h.Position)
	}
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, codes)

	require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{chunk("B", 1, 1, 1)}))
	hits, err = s.SearchSimilar(ctx, []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestFileStore_WritesOnlyOnFlush(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")
	s := NewFileStore(path, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.UpsertRecords(ctx, []domain.EmbeddedRecord{record(string(rune('A'+i)), 1, 0)}))
	}
	assert.NoFileExists(t, path)

	require.NoError(t, s.Flush(ctx))
	assert.FileExists(t, path)

	require.NoError(t, os.Remove(path))
	require.NoError(t, s.Flush(ctx))
	assert.NoFileExists(t, path, "clean store does not rewrite")

	reloaded := NewFileStore(path, 2)
	require.NoError(t, reloaded.Load())
	n, _ := reloaded.CountRecords(ctx)
	assert.Zero(t, n)
}
