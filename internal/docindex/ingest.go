package docindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	ingestBatchSize     = 64
)

type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	// Extensions lists the file suffixes to read; empty means ".txt".
	Extensions []string
	Logger     *zap.Logger
}

type IngestReport struct {
	Files  int `json:"files"`
	Chunks int `json:"chunks"`
}

// Ingest chunks every matching file under dir and adds the chunks to store.
// Each chunk's metadata source is the file path, so search results dedupe
// back to one hit per file.
func Ingest(ctx context.Context, store *Store, dir string, opts IngestOptions) (IngestReport, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".txt"}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("component", "ingest"), zap.String("index", store.ID()))

	paths, err := collectFiles(dir, opts.Extensions)
	if err != nil {
		return IngestReport{}, err
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
	)

	report := IngestReport{}
	var pending []schema.Document
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if _, err := store.AddDocuments(ctx, pending); err != nil {
			return err
		}
		report.Chunks += len(pending)
		pending = pending[:0]
		return nil
	}

	for _, path := range paths {
		blob, err := os.ReadFile(path)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", path, err)
		}
		text := strings.TrimSpace(string(blob))
		if text == "" {
			logger.Warn("file_empty", zap.String("path", path))
			continue
		}
		docs, err := textsplitter.CreateDocuments(splitter, []string{text}, []map[string]any{{"source": path}})
		if err != nil {
			return report, fmt.Errorf("split %s: %w", path, err)
		}
		report.Files++
		for _, d := range docs {
			pending = append(pending, d)
			if len(pending) >= ingestBatchSize {
				if err := flush(); err != nil {
					return report, err
				}
			}
		}
		logger.Debug("file_split", zap.String("path", path), zap.Int("chunks", len(docs)))
	}
	if err := flush(); err != nil {
		return report, err
	}
	logger.Info("ingest_done", zap.Int("files", report.Files), zap.Int("chunks", report.Chunks))
	return report, nil
}

func collectFiles(dir string, exts []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		lower := strings.ToLower(d.Name())
		for _, ext := range exts {
			if strings.HasSuffix(lower, strings.ToLower(ext)) {
				out = append(out, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}
