package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
)

const entityBase = "http://id.who.int/icd/entity/"

type fakeFetcher struct {
	mu       sync.Mutex
	entities map[string][]string // code -> child codes
	fail     map[string]bool
	calls    []string
}

func (f *fakeFetcher) FetchEntity(_ context.Context, uri string) (*domain.RawEntity, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := domain.CodeFromURI(uri)
	f.calls = append(f.calls, code)
	if f.fail[code] {
		return nil, nil, errors.New("HTTP 404")
	}
	children, ok := f.entities[code]
	if !ok {
		return nil, nil, errors.New("unknown entity")
	}
	raw := domain.RawEntity{ID: uri, Title: domain.LocalizedText{Value: "Entity " + code}}
	for _, c := range children {
		raw.Child = append(raw.Child, entityBase+c)
	}
	body, _ := json.Marshal(raw)
	return &raw, body, nil
}

func writeEntity(t *testing.T, dir, code string, children ...string) {
	t.Helper()
	raw := domain.RawEntity{ID: entityBase + code}
	for _, c := range children {
		raw.Child = append(raw.Child, entityBase+c)
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, code+".json"), data, 0644))
}

func TestCrawl_DepthFirstWithResume(t *testing.T) {
	dir := t.TempDir()
	writeEntity(t, dir, "3", "5")

	f := &fakeFetcher{
		entities: map[string][]string{"1": {"2", "3"}, "2": {"4"}, "4": nil},
		fail:     map[string]bool{"5": true},
	}
	svc := NewFetchService(f, dir, 0, 0)

	stats, err := svc.Crawl(context.Background(), []string{entityBase + "1"})
	require.NoError(t, err)

	assert.Equal(t, FetchStats{Fetched: 3, Skipped: 1, Failed: 1}, stats)
	assert.Equal(t, []string{"1", "2", "4", "5"}, f.calls)

	data, err := os.ReadFile(filepath.Join(dir, "4.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n  \"@id\""), "saved JSON is indented")
}

func TestCrawl_RootFromFile(t *testing.T) {
	dir := t.TempDir()
	rootDir := t.TempDir()
	writeEntity(t, rootDir, "448895267", "10", "11")

	f := &fakeFetcher{entities: map[string][]string{"10": nil, "11": nil}}
	stats, err := NewFetchService(f, dir, 0, 0).Crawl(context.Background(), []string{filepath.Join(rootDir, "448895267.json")})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Fetched)
	assert.FileExists(t, filepath.Join(dir, "10.json"))
	assert.FileExists(t, filepath.Join(dir, "11.json"))
}

func TestCrawl_MaxEntities(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{entities: map[string][]string{"1": {"2", "3"}, "2": nil, "3": nil}}

	stats, err := NewFetchService(f, dir, 0, 2).Crawl(context.Background(), []string{entityBase + "1"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Fetched)
	assert.NoFileExists(t, filepath.Join(dir, "3.json"))
}

func TestCrawl_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{entities: map[string][]string{"1": {"2"}, "2": nil}}

	dir := t.TempDir()
	writeEntity(t, dir, "1", "2")
	_, err := NewFetchService(f, dir, 0, 0).Crawl(ctx, []string{entityBase + "1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
}
