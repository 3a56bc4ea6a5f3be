package service

import (
	"context"
	"errors"
	"sync"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
)

type fakeAI struct {
	mu          sync.Mutex
	embedded    []string
	chatCalls   int
	lastChunks  []string
	chatReply   string
	streamToks  []string
	embedErr    error
	batchCalls  int
	failBatchAt int // 1-based batch number that fails, 0 = never
}

func (f *fakeAI) ModelName() string { return "fake" }

func (f *fakeAI) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded = append(f.embedded, text)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0}, nil
}

func (f *fakeAI) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.failBatchAt == f.batchCalls {
		return nil, errors.New("ollama down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeAI) Chat(_ context.Context, _ string, _ string, chunks []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.lastChunks = chunks
	return f.chatReply, nil
}

func (f *fakeAI) ChatStream(_ context.Context, _ string, _ string, chunks []string) (<-chan string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.lastChunks = chunks
	toks := f.streamToks
	f.mu.Unlock()

	ch := make(chan string, len(toks))
	for _, t := range toks {
		ch <- t
	}
	close(ch)
	return ch, nil
}

// fakeStore returns results[i] for the i-th search and keeps upserted records.
type fakeStore struct {
	mu       sync.Mutex
	results  [][]domain.SimilarRecord
	searches int
	upserts  [][]domain.EmbeddedRecord
	deleted  bool
}

func (f *fakeStore) Dimension() int { return 2 }

func (f *fakeStore) UpsertRecords(_ context.Context, records []domain.EmbeddedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, append([]domain.EmbeddedRecord(nil), records...))
	return nil
}

func (f *fakeStore) SearchSimilar(_ context.Context, _ []float32, _ int) ([]domain.SimilarRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.searches
	f.searches++
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

func (f *fakeStore) CountRecords(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.upserts {
		n += len(b)
	}
	return n, nil
}

func (f *fakeStore) DeleteAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = true
	f.upserts = nil
	return nil
}

func (f *fakeStore) stored() []domain.EmbeddedRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EmbeddedRecord
	for _, b := range f.upserts {
		out = append(out, b...)
	}
	return out
}

func hit(code, content string) domain.SimilarRecord {
	return domain.SimilarRecord{
		EmbeddedRecord: domain.EmbeddedRecord{
			Code:       code,
			Title:      "Title " + code,
			BrowserURL: "https://icd.who.int/browse/2025-01/foundation/en#" + code,
			Content:    content,
		},
		Similarity: 0.9,
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}
