package docindex

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"
)

type CatalogEntry struct {
	ID          string
	Description string
}

// Registry holds the indexes loaded at startup. It is read-only afterwards
// apart from Put, which ingest uses to publish a freshly built store.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
	infos  map[string]IndexInfo
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{stores: map[string]*Store{}, infos: map[string]IndexInfo{}}
}

// LoadRegistry loads each catalog entry from db. An entry that is not present
// in the file is skipped with a warning and later reported as not found. An
// empty catalog loads every index in the file.
func LoadRegistry(ctx context.Context, db *DB, embedder embeddings.Embedder, catalog []CatalogEntry, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(catalog) == 0 {
		infos, err := db.ListIndexes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list indexes: %w", err)
		}
		for _, info := range infos {
			catalog = append(catalog, CatalogEntry{ID: info.ID, Description: info.Description})
		}
	}

	r := NewRegistry()
	for _, entry := range catalog {
		store, err := LoadStore(ctx, db, entry.ID, embedder)
		if errors.Is(err, ErrIndexNotFound) {
			logger.Warn("index_missing", zap.String("index", entry.ID))
			continue
		}
		if err != nil {
			return nil, err
		}
		info, err := db.Index(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		if entry.Description != "" {
			info.Description = entry.Description
		}
		r.Put(store, info)
		logger.Info("index_loaded", zap.String("index", entry.ID), zap.Int("documents", store.Len()))
	}
	return r, nil
}

func (r *Registry) Put(store *Store, info IndexInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[store.ID()]; !ok {
		r.order = append(r.order, store.ID())
	}
	info.ID = store.ID()
	r.stores[store.ID()] = store
	r.infos[store.ID()] = info
}

func (r *Registry) Get(id string) (*Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, id)
	}
	return s, nil
}

// Indexes lists loaded indexes in load order with live document counts.
func (r *Registry) Indexes() []IndexInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IndexInfo, 0, len(r.order))
	for _, id := range r.order {
		info := r.infos[id]
		info.Documents = r.stores[id].Len()
		out = append(out, info)
	}
	return out
}
