package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher"
)

func newServer(t *testing.T) *http.ServeMux {
	t.Helper()
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
	path := filepath.Join(t.TempDir(), "animals.bind")
	_, err := segment.WriteFile(context.Background(), path, ix, time.Second)
	require.NoError(t, err)
	e, err := searcher.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	mux := http.NewServeMux()
	New(e, nil, 2, 3).Register(mux)
	return mux
}

func get(t *testing.T, mux http.Handler, method, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestSearch(t *testing.T) {
	mux := newServer(t)

	var res searcher.SearchResponse
	code := get(t, mux, http.MethodGet, "/api/v1/search?q=cat%20%7C%7C%20dog", &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cat || dog", res.Canonical)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Returned, "default limit applies")

	code = get(t, mux, http.MethodGet, "/api/v1/search?q=!fish&limit=100", &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, res.Returned)

	code = get(t, mux, http.MethodGet, "/api/v1/search?q=(cat", &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, res.Total)
	assert.NotEmpty(t, res.Malformed)
}

func TestSearchBadRequests(t *testing.T) {
	mux := newServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, get(t, mux, http.MethodGet, "/api/v1/search", &body))
	assert.Contains(t, body["error"], "'q'")
	assert.Equal(t, http.StatusBadRequest, get(t, mux, http.MethodGet, "/api/v1/search?q=cat&limit=0", &body))
	assert.Equal(t, http.StatusBadRequest, get(t, mux, http.MethodGet, "/api/v1/search?q=cat&limit=x", &body))
}

func TestTermRoutes(t *testing.T) {
	mux := newServer(t)

	var term searcher.TermResponse
	assert.Equal(t, http.StatusOK, get(t, mux, http.MethodGet, "/api/v1/terms/cat", &term))
	assert.Equal(t, uint32(2), term.Documents)
	assert.Equal(t, uint32(3), term.TotalOccurrences)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, mux, http.MethodGet, "/api/v1/terms/zebra", &body))
	assert.Contains(t, body["error"], "zebra")

	var top struct {
		Terms []struct {
			Term      string `json:"term"`
			Documents uint32 `json:"documents"`
		} `json:"terms"`
	}
	assert.Equal(t, http.StatusOK, get(t, mux, http.MethodGet, "/api/v1/terms?top=1", &top))
	require.Len(t, top.Terms, 1)
	assert.Equal(t, "cat", top.Terms[0].Term)
}

func TestDocumentRoute(t *testing.T) {
	mux := newServer(t)

	var doc index.Document
	assert.Equal(t, http.StatusOK, get(t, mux, http.MethodGet, "/api/v1/documents/2", &doc))
	assert.Equal(t, "c.txt", doc.Path)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, mux, http.MethodGet, "/api/v1/documents/7", &body))
	assert.Equal(t, http.StatusBadRequest, get(t, mux, http.MethodGet, "/api/v1/documents/-1", &body))
}

func TestIndexStatsAndReload(t *testing.T) {
	mux := newServer(t)
	var stats searcher.Stats
	assert.Equal(t, http.StatusOK, get(t, mux, http.MethodGet, "/api/v1/index", &stats))
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 4, stats.Terms)

	assert.Equal(t, http.StatusOK, get(t, mux, http.MethodPost, "/api/v1/index/reload", &stats))
	assert.Equal(t, 3, stats.Documents)
}

func TestCacheRoutesWhenDisabled(t *testing.T) {
	mux := newServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, mux, http.MethodGet, "/api/v1/cache/stats", &body))
	assert.Equal(t, "disabled", body["status"])
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, http.MethodPost, "/api/v1/cache/invalidate", &body))
}

type failingEngine struct{}

func (failingEngine) Search(context.Context, string, int) (*searcher.SearchResponse, error) {
	return nil, errors.New("disk on fire")
}
func (failingEngine) Term(string, int) (*searcher.TermResponse, error) { return nil, nil }
func (failingEngine) Document(uint32) (index.Document, error)          { return index.Document{}, nil }
func (failingEngine) TopTerms(int) []segment.TermInfo                  { return nil }
func (failingEngine) Stats() searcher.Stats                            { return searcher.Stats{} }
func (failingEngine) Reload(context.Context) error                     { return nil }

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	mux := http.NewServeMux()
	New(failingEngine{}, nil, 10, 10).Register(mux)
	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, get(t, mux, http.MethodGet, "/api/v1/search?q=cat", &body))
	assert.Equal(t, "internal error", body["error"])
}

var _ Engine = (*searcher.Engine)(nil)
