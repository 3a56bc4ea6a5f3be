package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

var errFetchLimit = errors.New("fetch limit reached")

// FetchStats summarizes a crawl.
type FetchStats struct {
	Fetched int `json:"fetched"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// FetchService crawls the ICD-11 foundation tree into a directory of JSON files.
type FetchService struct {
	fetcher     port.EntityFetcher
	outDir      string
	delay       time.Duration
	maxEntities int

	visited map[string]bool
	stats   FetchStats
}

// NewFetchService creates a crawler writing <id>.json files into outDir.
// maxEntities of 0 means no limit.
func NewFetchService(fetcher port.EntityFetcher, outDir string, delay time.Duration, maxEntities int) *FetchService {
	return &FetchService{
		fetcher:     fetcher,
		outDir:      outDir,
		delay:       delay,
		maxEntities: maxEntities,
	}
}

// Crawl walks the tree depth first below each root. A root is either an entity
// URI or a path to an already saved root JSON file; crawling starts at its children.
// Entities already saved on disk are not downloaded again but their children are
// still visited, so an interrupted crawl can be resumed.
func (s *FetchService) Crawl(ctx context.Context, roots []string) (FetchStats, error) {
	if err := os.MkdirAll(s.outDir, 0755); err != nil {
		return FetchStats{}, fmt.Errorf("create output dir: %w", err)
	}
	s.visited = make(map[string]bool)
	s.stats = FetchStats{}

	for _, root := range roots {
		children, err := s.rootChildren(ctx, root)
		if err != nil {
			slog.Error("root failed", "root", root, "error", err)
			s.stats.Failed++
			continue
		}
		slog.Info("crawling root", "root", root, "children", len(children))
		for _, child := range children {
			if err := s.visit(ctx, child); err != nil {
				if errors.Is(err, errFetchLimit) {
					slog.Info("fetch limit reached", "max_entities", s.maxEntities)
					return s.stats, nil
				}
				return s.stats, err
			}
		}
	}

	slog.Info("crawl complete", "fetched", s.stats.Fetched, "skipped", s.stats.Skipped, "failed", s.stats.Failed)
	return s.stats, nil
}

func (s *FetchService) rootChildren(ctx context.Context, root string) ([]string, error) {
	if strings.HasSuffix(root, ".json") {
		entity, err := readRawEntity(root)
		if err != nil {
			return nil, err
		}
		return entity.Child, nil
	}
	s.visited[root] = true
	entity, _, err := s.load(ctx, root)
	if err != nil {
		return nil, err
	}
	return entity.Child, nil
}

func (s *FetchService) visit(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.visited[uri] {
		return nil
	}
	s.visited[uri] = true

	entity, fetched, err := s.load(ctx, uri)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("fetch failed", "uri", uri, "error", err)
		s.stats.Failed++
		return nil
	}

	if fetched {
		if s.maxEntities > 0 && s.stats.Fetched >= s.maxEntities {
			return errFetchLimit
		}
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	for _, child := range entity.Child {
		if err := s.visit(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// load returns the saved copy of uri when present, otherwise downloads and saves it.
// fetched reports whether a network request was made.
func (s *FetchService) load(ctx context.Context, uri string) (*domain.RawEntity, bool, error) {
	path := s.entityPath(uri)
	if _, err := os.Stat(path); err == nil {
		entity, err := readRawEntity(path)
		if err != nil {
			return nil, false, err
		}
		s.stats.Skipped++
		return entity, false, nil
	}

	entity, body, err := s.fetcher.FetchEntity(ctx, uri)
	if err != nil {
		return nil, true, err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return nil, true, fmt.Errorf("indent %s: %w", uri, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return nil, true, fmt.Errorf("write %s: %w", path, err)
	}
	s.stats.Fetched++
	slog.Debug("fetched entity", "uri", uri, "children", len(entity.Child))
	if s.stats.Fetched%100 == 0 {
		slog.Info("crawl progress", "fetched", s.stats.Fetched, "skipped", s.stats.Skipped, "failed", s.stats.Failed)
	}
	return entity, true, nil
}

func (s *FetchService) entityPath(uri string) string {
	return filepath.Join(s.outDir, domain.CodeFromURI(uri)+".json")
}

func readRawEntity(path string) (*domain.RawEntity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entity domain.RawEntity
	if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &entity); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &entity, nil
}
