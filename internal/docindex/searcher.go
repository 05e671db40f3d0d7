package docindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joelkehle/patent-assistant/internal/patentqa"
)

type SearcherConfig struct {
	// Workers above 1 searches keywords concurrently. Results are still merged
	// in keyword order.
	Workers int
	Logger  *zap.Logger
}

// Searcher answers keyword batches against the registry's indexes.
type Searcher struct {
	registry *Registry
	pool     *ants.Pool
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSearcher(registry *Registry, cfg SearcherConfig) (*Searcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Searcher{
		registry: registry,
		logger:   cfg.Logger.With(zap.String("component", "docindex")),
		tracer:   otel.Tracer("github.com/joelkehle/patent-assistant/internal/docindex"),
	}
	if cfg.Workers > 1 {
		pool, err := ants.NewPool(cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("create search pool: %w", err)
		}
		s.pool = pool
	}
	return s, nil
}

// Release stops the worker pool, if any, and waits for its workers to exit.
func (s *Searcher) Release() {
	if s.pool != nil {
		_ = s.pool.ReleaseTimeout(5 * time.Second)
	}
}

func (s *Searcher) Search(ctx context.Context, q patentqa.SearchQuery) (*patentqa.DocumentSet, error) {
	if len(q.Keywords) == 0 {
		return nil, patentqa.ErrEmptyKeywords
	}
	if q.KPerKeyword <= 0 {
		q.KPerKeyword = patentqa.DefaultKPerKeyword
	}
	store, err := s.registry.Get(q.IndexID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "docindex.search", trace.WithAttributes(
		attribute.String("docindex.index", q.IndexID),
		attribute.Int("docindex.keywords", len(q.Keywords)),
		attribute.Int("docindex.k_per_keyword", q.KPerKeyword),
		attribute.Bool("docindex.parallel", s.pool != nil),
	))
	defer span.End()

	started := time.Now()
	var perKeyword [][]patentqa.RetrievedDocument
	if s.pool != nil {
		perKeyword, err = s.searchParallel(ctx, store, q)
	} else {
		perKeyword, err = s.searchSequential(ctx, store, q)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	set := patentqa.MergeKeywordResults(perKeyword)
	span.SetAttributes(attribute.Int("docindex.documents", set.Len()))
	s.logger.Info("search_done",
		zap.String("index", q.IndexID),
		zap.Strings("keywords", q.Keywords),
		zap.Int("documents", set.Len()),
		zap.Int64("elapsed_ms", time.Since(started).Milliseconds()),
	)
	return set, nil
}

func (s *Searcher) searchSequential(ctx context.Context, store *Store, q patentqa.SearchQuery) ([][]patentqa.RetrievedDocument, error) {
	retriever := vectorstores.ToRetriever(store, q.KPerKeyword)
	out := make([][]patentqa.RetrievedDocument, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		docs, err := retriever.GetRelevantDocuments(ctx, kw)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		out = append(out, toRetrieved(docs))
	}
	return out, nil
}

// searchParallel collects every keyword's list before returning so the merge
// sees the same input as a sequential run.
func (s *Searcher) searchParallel(ctx context.Context, store *Store, q patentqa.SearchQuery) ([][]patentqa.RetrievedDocument, error) {
	retriever := vectorstores.ToRetriever(store, q.KPerKeyword)
	out := make([][]patentqa.RetrievedDocument, len(q.Keywords))
	errs := make([]error, len(q.Keywords))

	var wg sync.WaitGroup
	for i, kw := range q.Keywords {
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			docs, err := retriever.GetRelevantDocuments(ctx, kw)
			if err != nil {
				errs[i] = fmt.Errorf("keyword %q: %w", kw, err)
				return
			}
			out[i] = toRetrieved(docs)
		}); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit keyword %q: %w", kw, err)
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func toRetrieved(docs []schema.Document) []patentqa.RetrievedDocument {
	out := make([]patentqa.RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, patentqa.NewRetrievedDocument(d.PageContent, d.Metadata))
	}
	return out
}
