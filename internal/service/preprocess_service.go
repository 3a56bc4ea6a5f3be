package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

// FailureLogName is written next to the cleaned text (or the JSON input) when entries are skipped.
const FailureLogName = "failure_log.txt"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Preprocessing stages reported to ProgressFunc.
const (
	StageConvert = "convert"
	StageEmbed   = "embed"
)

// ProgressFunc receives stage progress. total may be 0 when unknown.
type ProgressFunc func(stage string, done, total int)

// PreprocessOptions configures one preprocessing run.
type PreprocessOptions struct {
	JSONDir                string
	TextDir                string // optional; cleaned .txt files are written here when set
	SkipMissingDefinitions bool
	ChunkSize              int // 0 keeps one record per entity
	ChunkOverlap           int
	BatchSize              int
	Reset                  bool // clear the store before indexing
}

// PreprocessStats summarizes a preprocessing run.
type PreprocessStats struct {
	Total              int `json:"total"`
	Records            int `json:"records"`
	SkippedMissingDefs int `json:"skipped_missing_defs"`
	Failed             int `json:"failed"`
}

// PreprocessService converts raw ICD-11 JSON into embedded records.
type PreprocessService struct {
	ai      port.AIProvider
	records port.RecordStore
}

// NewPreprocessService creates a new preprocessing service.
func NewPreprocessService(ai port.AIProvider, records port.RecordStore) *PreprocessService {
	return &PreprocessService{ai: ai, records: records}
}

// Run reads every *.json file in opts.JSONDir, flattens and embeds it, and upserts the
// records batch by batch. All records of one entity go to the store in the same batch,
// so a re-run replaces the entity as a whole. Records stored before an embedding
// failure are kept.
func (s *PreprocessService) Run(ctx context.Context, opts PreprocessOptions, progress ProgressFunc) (stats PreprocessStats, err error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	files, err := filepath.Glob(filepath.Join(opts.JSONDir, "*.json"))
	if err != nil {
		return PreprocessStats{}, fmt.Errorf("list json files: %w", err)
	}
	sort.Strings(files)

	if opts.TextDir != "" {
		if err := os.MkdirAll(opts.TextDir, 0755); err != nil {
			return PreprocessStats{}, fmt.Errorf("create text dir: %w", err)
		}
	}

	stats = PreprocessStats{Total: len(files)}
	splitter := NewTextSplitter(opts.ChunkSize, opts.ChunkOverlap)
	var pending [][]domain.EmbeddedRecord // one group per entity
	var pendingRecords int
	var failures []string

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		name := filepath.Base(path)
		entity, err := loadEntityFile(path)
		if err != nil {
			slog.Warn("skipping file", "file", name, "error", err)
			stats.Failed++
			failures = append(failures, fmt.Sprintf("%s → exception: %v", name, err))
			progress(StageConvert, i+1, len(files))
			continue
		}

		if opts.SkipMissingDefinitions && !entity.HasDefinition() {
			stats.SkippedMissingDefs++
			failures = append(failures, name+" → missing_definition")
			progress(StageConvert, i+1, len(files))
			continue
		}

		text := EntityToText(entity)
		sourceFile := name
		if opts.TextDir != "" {
			sourceFile = SanitizeFileName(entity.Code, entity.Title) + ".txt"
			if err := os.WriteFile(filepath.Join(opts.TextDir, sourceFile), []byte(text), 0644); err != nil {
				return stats, fmt.Errorf("write %s: %w", sourceFile, err)
			}
		}

		var group []domain.EmbeddedRecord
		for pos, chunk := range splitter.Split(text) {
			group = append(group, domain.EmbeddedRecord{
				Code:       entity.Code,
				Position:   pos,
				Title:      entity.Title,
				BrowserURL: entity.BrowserURL,
				SourceFile: sourceFile,
				Synonyms:   entity.Synonyms,
				Content:    chunk,
			})
		}
		pending = append(pending, group)
		pendingRecords += len(group)
		progress(StageConvert, i+1, len(files))
	}

	slog.Info("converted ICD-11 entries",
		"total", stats.Total,
		"records", pendingRecords,
		"skipped_missing_defs", stats.SkippedMissingDefs,
		"failed", stats.Failed,
	)

	if len(failures) > 0 {
		logDir := opts.TextDir
		if logDir == "" {
			logDir = opts.JSONDir
		}
		logPath := filepath.Join(logDir, FailureLogName)
		if err := os.WriteFile(logPath, []byte(strings.Join(failures, "\n")+"\n"), 0644); err != nil {
			slog.Warn("write failure log", "path", logPath, "error", err)
		}
	}

	if pendingRecords == 0 {
		return stats, port.ErrNoRecords
	}

	if f, ok := s.records.(port.Flusher); ok {
		defer func() {
			if ferr := f.Flush(context.WithoutCancel(ctx)); ferr != nil && err == nil {
				err = fmt.Errorf("flush store: %w", ferr)
			}
		}()
	}

	if opts.Reset {
		if err := s.records.DeleteAll(ctx); err != nil {
			return stats, fmt.Errorf("reset store: %w", err)
		}
	}

	for next := 0; next < len(pending); {
		var batch []domain.EmbeddedRecord
		for next < len(pending) && (len(batch) == 0 || len(batch)+len(pending[next]) <= batchSize) {
			batch = append(batch, pending[next]...)
			next++
		}

		start, end := stats.Records, stats.Records+len(batch)
		if err := s.embed(ctx, batch, batchSize); err != nil {
			return stats, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if err := s.records.UpsertRecords(ctx, batch); err != nil {
			return stats, fmt.Errorf("store batch %d-%d: %w", start, end, err)
		}
		stats.Records = end
		progress(StageEmbed, stats.Records, pendingRecords)
	}

	slog.Info("embedded ICD-11 records", "records", stats.Records, "model_dimension", s.records.Dimension())
	return stats, nil
}

// embed fills the vectors of batch with at most size texts per request.
// A batch only exceeds size when a single entity has more chunks than that.
func (s *PreprocessService) embed(ctx context.Context, batch []domain.EmbeddedRecord, size int) error {
	for start := 0; start < len(batch); start += size {
		part := batch[start:min(start+size, len(batch))]
		texts := make([]string, len(part))
		for j, r := range part {
			texts[j] = r.Content
		}
		vectors, err := s.ai.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for j := range part {
			part[j].Vector = vectors[j]
		}
	}
	return nil
}

func loadEntityFile(path string) (domain.ClassificationEntity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ClassificationEntity{}, err
	}
	var raw domain.RawEntity
	if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &raw); err != nil {
		return domain.ClassificationEntity{}, err
	}
	return raw.ToEntity(strings.TrimSuffix(filepath.Base(path), ".json")), nil
}
