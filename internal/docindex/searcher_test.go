package docindex

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/patent-assistant/internal/patentqa"
)

func newTestSearcher(t *testing.T, workers int) *Searcher {
	t.Helper()
	db := openTestDB(t)
	reg := NewRegistry()
	store := seedStore(t, db, "core")
	reg.Put(store, IndexInfo{Description: "core"})
	s, err := NewSearcher(reg, SearcherConfig{Workers: workers})
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func TestSearcherUnionInKeywordOrder(t *testing.T) {
	s := newTestSearcher(t, 0)
	set, err := s.Search(context.Background(), patentqa.SearchQuery{IndexID: "core", Keywords: []string{"capacitor", "transistor"}, KPerKeyword: 2})
	require.NoError(t, err)
	// capacitor -> b, a; transistor -> c, a
	assert.Equal(t, []string{"b.txt", "a.txt", "c.txt"}, set.Sources())
	first, _ := set.First()
	assert.Equal(t, "/corpus/b.txt", first.Metadata["source"])
}

func TestSearcherParallelMatchesSequential(t *testing.T) {
	q := patentqa.SearchQuery{IndexID: "core", Keywords: []string{"transistor", "leakage", "capacitor", "wordline"}, KPerKeyword: 2}
	want, err := newTestSearcher(t, 0).Search(context.Background(), q)
	require.NoError(t, err)

	parallel := newTestSearcher(t, 4)
	for i := 0; i < 10; i++ {
		got, err := parallel.Search(context.Background(), q)
		require.NoError(t, err)
		if diff := cmp.Diff(want.Sources(), got.Sources()); diff != "" {
			t.Fatalf("parallel merge differs (-sequential +parallel):\n%s", diff)
		}
	}
}

func TestSearcherBoundedByKeywordsTimesK(t *testing.T) {
	s := newTestSearcher(t, 0)
	set, err := s.Search(context.Background(), patentqa.SearchQuery{IndexID: "core", Keywords: []string{"capacitor"}, KPerKeyword: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestSearcherDefaultsK(t *testing.T) {
	s := newTestSearcher(t, 0)
	set, err := s.Search(context.Background(), patentqa.SearchQuery{IndexID: "core", Keywords: []string{"capacitor"}})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
}

func TestSearcherErrors(t *testing.T) {
	s := newTestSearcher(t, 0)
	_, err := s.Search(context.Background(), patentqa.SearchQuery{IndexID: "nope", Keywords: []string{"x"}})
	assert.ErrorIs(t, err, ErrIndexNotFound)

	_, err = s.Search(context.Background(), patentqa.SearchQuery{IndexID: "core"})
	assert.ErrorIs(t, err, patentqa.ErrEmptyKeywords)
}

func TestSearcherEmbedFailureAborts(t *testing.T) {
	for _, workers := range []int{0, 3} {
		db := openTestDB(t)
		seedStore(t, db, "core")
		broken, err := LoadStore(context.Background(), db, "core", wordEmbedder{err: errEmbedDown})
		require.NoError(t, err)
		reg := NewRegistry()
		reg.Put(broken, IndexInfo{})
		s, err := NewSearcher(reg, SearcherConfig{Workers: workers})
		require.NoError(t, err)

		_, err = s.Search(context.Background(), patentqa.SearchQuery{IndexID: "core", Keywords: []string{"a", "b"}})
		assert.ErrorIs(t, err, errEmbedDown)
		s.Release()
	}
}

func TestLoadRegistrySkipsMissingIndexes(t *testing.T) {
	db := openTestDB(t)
	seedStore(t, db, "core")
	reg, err := LoadRegistry(context.Background(), db, wordEmbedder{vocab: testVocab}, []CatalogEntry{
		{ID: "core", Description: "Core patents"},
		{ID: "3d_dram", Description: "3D DRAM patents"},
	}, nil)
	require.NoError(t, err)

	infos := reg.Indexes()
	require.Len(t, infos, 1)
	assert.Equal(t, "core", infos[0].ID)
	assert.Equal(t, "Core patents", infos[0].Description)
	assert.Equal(t, 3, infos[0].Documents)
	_, err = reg.Get("3d_dram")
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestLoadRegistryEmptyCatalogLoadsAll(t *testing.T) {
	db := openTestDB(t)
	seedStore(t, db, "a")
	seedStore(t, db, "b")
	reg, err := LoadRegistry(context.Background(), db, wordEmbedder{vocab: testVocab}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, reg.Indexes(), 2)
}
