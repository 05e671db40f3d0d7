package docindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

var _ vectorstores.VectorStore = (*Store)(nil)

type storedDocument struct {
	id       int64
	content  string
	metadata map[string]any
	vector   []float32
}

// Store is one named index held in memory and backed by the sqlite file.
// Reads take the read lock only, so concurrent searches never block each other.
type Store struct {
	id       string
	db       *DB
	embedder embeddings.Embedder

	mu   sync.RWMutex
	docs []storedDocument
}

// LoadStore reads an existing index into memory.
func LoadStore(ctx context.Context, db *DB, id string, embedder embeddings.Embedder) (*Store, error) {
	if _, err := db.Index(ctx, id); err != nil {
		return nil, err
	}
	rows, err := db.loadDocuments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", id, err)
	}
	s := &Store{id: id, db: db, embedder: embedder, docs: make([]storedDocument, 0, len(rows))}
	for _, r := range rows {
		vec, err := decodeVector(r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("index %s document %d: %w", id, r.DocID, err)
		}
		meta := map[string]any{}
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("index %s document %d metadata: %w", id, r.DocID, err)
		}
		s.docs = append(s.docs, storedDocument{id: r.DocID, content: r.Content, metadata: meta, vector: vec})
	}
	return s, nil
}

// CreateStore registers the index when missing and loads it.
func CreateStore(ctx context.Context, db *DB, id, description, embeddingModel string, embedder embeddings.Embedder) (*Store, error) {
	if err := db.EnsureIndex(ctx, id, description, embeddingModel); err != nil {
		return nil, err
	}
	return LoadStore(ctx, db, id, embedder)
}

func (s *Store) ID() string { return s.id }

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// AddDocuments embeds and persists docs, returning their row ids.
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	opts := s.options(options)
	embedder := s.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	rows := make([]documentRow, len(docs))
	stored := make([]storedDocument, len(docs))
	for i, d := range docs {
		meta := d.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		blob, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		vec := normalize(vectors[i])
		rows[i] = documentRow{Content: d.PageContent, Metadata: string(blob), Embedding: encodeVector(vec)}
		stored[i] = storedDocument{content: d.PageContent, metadata: maps.Clone(meta), vector: vec}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rowIDs, err := s.db.insertDocuments(ctx, s.id, rows)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rowIDs))
	for i, id := range rowIDs {
		stored[i].id = id
		ids[i] = strconv.FormatInt(id, 10)
	}
	s.docs = append(s.docs, stored...)
	return ids, nil
}

// SimilaritySearch returns up to numDocuments documents ordered by cosine
// similarity to query. Ties keep insertion order.
func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return []schema.Document{}, nil
	}
	opts := s.options(options)
	embedder := s.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	qv, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qv = normalize(qv)

	type hit struct {
		idx   int
		score float32
	}
	s.mu.RLock()
	hits := make([]hit, 0, len(s.docs))
	for i, d := range s.docs {
		score := dotProduct(qv, d.vector)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		hits = append(hits, hit{idx: i, score: score})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > numDocuments {
		hits = hits[:numDocuments]
	}
	out := make([]schema.Document, 0, len(hits))
	for _, h := range hits {
		d := s.docs[h.idx]
		out = append(out, schema.Document{PageContent: d.content, Metadata: maps.Clone(d.metadata), Score: h.score})
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) options(options []vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	return opts
}
