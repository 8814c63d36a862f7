package searcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
)

func animals(extra ...string) *index.Index {
	ix := &index.Index{
		Documents: []index.Document{
			{ID: 0, Title: "a", Path: "a.txt"},
			{ID: 1, Title: "b", Path: "b.txt"},
			{ID: 2, Title: "c", Path: "c.txt"},
		},
		Terms: []index.TermEntry{
			{Term: "bird", Postings: index.PostingList{DocIDs: []uint32{1, 2}, TotalOccurrences: 2}},
			{Term: "cat", Postings: index.PostingList{DocIDs: []uint32{0, 2}, TotalOccurrences: 3}},
			{Term: "dog", Postings: index.PostingList{DocIDs: []uint32{0, 1}, TotalOccurrences: 2}},
			{Term: "fish", Postings: index.PostingList{DocIDs: []uint32{2}, TotalOccurrences: 1}},
		},
	}
	for _, title := range extra {
		id := uint32(len(ix.Documents))
		ix.Documents = append(ix.Documents, index.Document{ID: id, Title: title, Path: title + ".txt"})
	}
	return ix
}

func publish(t *testing.T, path string, ix *index.Index) {
	t.Helper()
	_, err := segment.WriteFile(context.Background(), path, ix, time.Second)
	require.NoError(t, err)
}

func openEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "animals.bind")
	publish(t, path, animals())
	norm := tokenizer.New(tokenizer.Options{MinLength: 2})
	e, err := Open(path,
		WithPostingCache(16),
		WithParserOptions(parser.WithNormalizer(norm)),
		WithMetrics(metrics.New(nil)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, path
}

func TestEngineSearch(t *testing.T) {
	e, _ := openEngine(t)

	res, err := e.Search(context.Background(), "Cat || FISH", 10)
	require.NoError(t, err)
	assert.Equal(t, "cat || fish", res.Canonical)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []Hit{{ID: 0, Title: "a", Path: "a.txt"}, {ID: 2, Title: "c", Path: "c.txt"}}, res.Hits)

	res, err = e.Search(context.Background(), "!fish", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Returned)
	assert.Equal(t, uint32(0), res.Hits[0].ID)
}

func TestEngineMalformedQuery(t *testing.T) {
	e, _ := openEngine(t)
	res, err := e.Search(context.Background(), "cat &&", 10)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Hits)
	assert.NotEmpty(t, res.Malformed)
}

func TestEngineTermAndDocument(t *testing.T) {
	e, _ := openEngine(t)

	tr, err := e.Term("CAT", 1)
	require.NoError(t, err)
	assert.Equal(t, "cat", tr.Term)
	assert.Equal(t, uint32(2), tr.Documents)
	assert.Equal(t, uint32(3), tr.TotalOccurrences)
	assert.Len(t, tr.Hits, 1)

	_, err = e.Term("zebra", 10)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.Term("cat && dog", 10)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	doc, err := e.Document(1)
	require.NoError(t, err)
	assert.Equal(t, "b", doc.Title)
	_, err = e.Document(9)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	top := e.TopTerms(1)
	require.Len(t, top, 1)
	assert.Equal(t, "cat", top[0].Term)
}

func TestEngineReload(t *testing.T) {
	e, path := openEngine(t)
	before := e.Stats()
	assert.Equal(t, 3, before.Documents)

	publish(t, path, animals("newcomer"))
	require.NoError(t, e.Reload(context.Background()))

	after := e.Stats()
	assert.Equal(t, 4, after.Documents)
	res, err := e.Search(context.Background(), "!cat", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestEngineReloadFailureKeepsCurrentIndex(t *testing.T) {
	e, path := openEngine(t)
	bad := path + ".bad"
	require.NoError(t, os.WriteFile(bad, []byte("not an index"), 0o644))
	require.NoError(t, os.Rename(bad, path))

	err := e.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrFormat))

	res, err := e.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestEngineConcurrentSearchDuringReload(t *testing.T) {
	e, path := openEngine(t)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := e.Search(context.Background(), "cat && dog", 10)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, 1, res.Total)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		publish(t, path, animals())
		require.NoError(t, e.Reload(context.Background()))
	}
	close(stop)
	wg.Wait()
}
