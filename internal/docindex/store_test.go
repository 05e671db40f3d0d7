package docindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

func sources(docs []schema.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		src, _ := d.Metadata["source"].(string)
		out = append(out, src)
	}
	return out
}

func TestSimilaritySearchOrdersByCosine(t *testing.T) {
	store := seedStore(t, openTestDB(t), "core")

	docs, err := store.SimilaritySearch(context.Background(), "capacitor", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"/corpus/b.txt", "/corpus/a.txt"}, sources(docs))
	assert.InDelta(t, 1.0, docs[0].Score, 1e-5)
	assert.InDelta(t, 0.7071, docs[1].Score, 1e-3)
}

func TestSimilaritySearchTiesKeepInsertionOrder(t *testing.T) {
	store := seedStore(t, openTestDB(t), "core")
	docs, err := store.SimilaritySearch(context.Background(), "transistor", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"/corpus/c.txt", "/corpus/a.txt", "/corpus/b.txt"}, sources(docs))
}

func TestSimilaritySearchScoreThreshold(t *testing.T) {
	store := seedStore(t, openTestDB(t), "core")
	docs, err := store.SimilaritySearch(context.Background(), "capacitor", 5, vectorstores.WithScoreThreshold(0.9))
	require.NoError(t, err)
	assert.Equal(t, []string{"/corpus/b.txt"}, sources(docs))
}

func TestStoreReloadsFromDisk(t *testing.T) {
	db := openTestDB(t)
	seedStore(t, db, "core")

	reloaded, err := LoadStore(context.Background(), db, "core", wordEmbedder{vocab: testVocab})
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Len())
	docs, err := reloaded.SimilaritySearch(context.Background(), "capacitor", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/corpus/b.txt"}, sources(docs))
}

func TestLoadStoreUnknownIndex(t *testing.T) {
	_, err := LoadStore(context.Background(), openTestDB(t), "missing", wordEmbedder{vocab: testVocab})
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestEnsureIndexRejectsModelChange(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.EnsureIndex(context.Background(), "core", "", "model-a"))
	assert.ErrorContains(t, db.EnsureIndex(context.Background(), "core", "", "model-b"), "was built with model-a")
	require.NoError(t, db.EnsureIndex(context.Background(), "core", "Core patents", "model-a"))

	infos, err := db.ListIndexes(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Core patents", infos[0].Description)
}

func TestAddDocumentsEmbedFailureWritesNothing(t *testing.T) {
	db := openTestDB(t)
	store, err := CreateStore(context.Background(), db, "core", "", "", wordEmbedder{err: errEmbedDown})
	require.NoError(t, err)
	_, err = store.AddDocuments(context.Background(), []schema.Document{{PageContent: "x"}})
	require.ErrorIs(t, err, errEmbedDown)
	assert.Zero(t, store.Len())

	info, err := db.Index(context.Background(), "core")
	require.NoError(t, err)
	assert.Zero(t, info.Documents)
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, v)
}
