package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

// fileIndex is the on-disk layout of a FileStore.
type fileIndex struct {
	Dimension int                     `json:"dimension"`
	Records   []domain.EmbeddedRecord `json:"records"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// FileStore keeps records in memory and persists them as a single JSON file.
// Writes stay in memory until Flush. Search is brute-force cosine similarity.
type FileStore struct {
	mu        sync.RWMutex
	path      string
	dimension int
	records   []domain.EmbeddedRecord
	byKey     map[string]int
	nextID    int
	dirty     bool
}

// NewFileStore creates a store at path. Call Load to read existing records.
func NewFileStore(path string, dimension int) *FileStore {
	return &FileStore{
		path:      path,
		dimension: dimension,
		byKey:     make(map[string]int),
	}
}

// Load reads the index from disk. A missing file is not an error.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}

	var idx fileIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("decode store file: %w", err)
	}
	if idx.Dimension != 0 && idx.Dimension != s.dimension {
		return fmt.Errorf("store file %s: %w (file has %d, want %d)", s.path, port.ErrDimensionMismatch, idx.Dimension, s.dimension)
	}

	s.records = idx.Records
	s.nextID = 0
	for _, r := range idx.Records {
		if n, err := strconv.Atoi(r.ID); err == nil && n > s.nextID {
			s.nextID = n
		}
	}
	s.reindexLocked()
	s.dirty = false
	return nil
}

// Dimension returns the configured vector length.
func (s *FileStore) Dimension() int {
	return s.dimension
}

// UpsertRecords replaces records with the same (code, position) and drops stored
// positions of the batch's codes that the batch does not carry.
func (s *FileStore) UpsertRecords(_ context.Context, records []domain.EmbeddedRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("record %s: %w (got %d, want %d)", r.Code, port.ErrDimensionMismatch, len(r.Vector), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropStaleLocked(records)

	now := time.Now().UTC()
	for _, r := range records {
		r.CreatedAt = now
		key := recordKey(r.Code, r.Position)
		if i, ok := s.byKey[key]; ok {
			r.ID = s.records[i].ID
			s.records[i] = r
			continue
		}
		s.nextID++
		r.ID = strconv.Itoa(s.nextID)
		s.byKey[key] = len(s.records)
		s.records = append(s.records, r)
	}
	s.dirty = true
	return nil
}

// dropStaleLocked removes records whose code is in batch but whose position is not.
func (s *FileStore) dropStaleLocked(batch []domain.EmbeddedRecord) {
	codes := make(map[string]bool, len(batch))
	keys := make(map[string]bool, len(batch))
	for _, r := range batch {
		codes[r.Code] = true
		keys[recordKey(r.Code, r.Position)] = true
	}

	kept := s.records[:0]
	for _, r := range s.records {
		if codes[r.Code] && !keys[recordKey(r.Code, r.Position)] {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == len(s.records) {
		return
	}
	clear(s.records[len(kept):])
	s.records = kept
	s.reindexLocked()
}

func (s *FileStore) reindexLocked() {
	s.byKey = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.byKey[recordKey(r.Code, r.Position)] = i
	}
}

// SearchSimilar returns the limit records closest to queryVector.
func (s *FileStore) SearchSimilar(_ context.Context, queryVector []float32, limit int) ([]domain.SimilarRecord, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("search: %w (got %d, want %d)", port.ErrDimensionMismatch, len(queryVector), s.dimension)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.SimilarRecord, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, domain.SimilarRecord{
			EmbeddedRecord: r,
			Similarity:     cosineSimilarity(queryVector, r.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CountRecords returns the number of stored records.
func (s *FileStore) CountRecords(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// DeleteAll clears the store. The file is truncated on the next Flush.
func (s *FileStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.byKey = make(map[string]int)
	s.nextID = 0
	s.dirty = true
	return nil
}

// Flush writes pending changes to disk. It is a no-op when nothing changed.
func (s *FileStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// saveLocked writes to a temp file and renames it over the target. Caller holds mu.
func (s *FileStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := json.Marshal(fileIndex{
		Dimension: s.dimension,
		Records:   s.records,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

func recordKey(code string, position int) string {
	return code + "#" + strconv.Itoa(position)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
