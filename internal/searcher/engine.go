// Package searcher serves boolean queries against a published index file and
// swaps to a fresh reader when the file is republished.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
)

// Hit is one matching document.
type Hit struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

type SearchResponse struct {
	Query     string `json:"query"`
	Canonical string `json:"canonical,omitempty"`
	Total     int    `json:"total"`
	Returned  int    `json:"returned"`
	Hits      []Hit  `json:"hits"`
	Malformed string `json:"malformed,omitempty"`
	CacheHit  bool   `json:"cache_hit"`
	LatencyMs int64  `json:"latency_ms"`
}

type TermResponse struct {
	Term             string `json:"term"`
	Documents        uint32 `json:"documents"`
	TotalOccurrences uint32 `json:"total_occurrences"`
	Hits             []Hit  `json:"hits"`
}

// snapshot pairs a reader with its executor. Queries hold the read lock for
// their duration; retiring a snapshot takes the write lock before closing
// the reader.
type snapshot struct {
	mu       sync.RWMutex
	closed   bool
	reader   *segment.Reader
	exec     *executor.Executor
	loadedAt time.Time
}

type Engine struct {
	path       string
	cacheSize  int
	parserOpts []parser.Option
	cache      *cache.QueryCache
	metrics    *metrics.Metrics
	current    atomic.Pointer[snapshot]
	reloadMu   sync.Mutex
	logger     *slog.Logger
}

type Option func(*Engine)

func WithPostingCache(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

func WithParserOptions(opts ...parser.Option) Option {
	return func(e *Engine) { e.parserOpts = append(e.parserOpts, opts...) }
}

func WithQueryCache(c *cache.QueryCache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Open loads the index at path.
func Open(path string, opts ...Option) (*Engine, error) {
	e := &Engine{
		path:   path,
		logger: slog.Default().With("component", "search-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	snap, err := e.load()
	if err != nil {
		return nil, err
	}
	e.current.Store(snap)
	return e, nil
}

func (e *Engine) load() (*snapshot, error) {
	r, err := segment.Open(e.path,
		segment.WithPostingCache(e.cacheSize),
		segment.WithMetrics(e.metrics),
	)
	if err != nil {
		return nil, err
	}
	exec := executor.New(r,
		executor.WithParserOptions(e.parserOpts...),
		executor.WithMetrics(e.metrics),
	)
	return &snapshot{reader: r, exec: exec, loadedAt: time.Now()}, nil
}

// Reload opens the file again and swaps it in. The previous reader is closed
// once in-flight queries release it. On failure the current reader stays.
func (e *Engine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	snap, err := e.load()
	if err != nil {
		e.metrics.ObserveReload(false)
		logger.FromContext(ctx).Error("index reload failed", "path", e.path, "error", err)
		return fmt.Errorf("reloading %s: %w", e.path, err)
	}
	old := e.current.Swap(snap)
	e.metrics.ObserveReload(true)
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx); err != nil {
			e.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	e.logger.Info("index reloaded",
		"path", e.path,
		"documents", snap.reader.DocCount(),
		"terms", snap.reader.TermCount(),
	)
	go retire(old)
	return nil
}

func retire(s *snapshot) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if err := s.reader.Close(); err != nil {
		slog.Warn("closing retired index reader", "error", err)
	}
}

// acquire returns the live snapshot read-locked. The caller must release it.
func (e *Engine) acquire() *snapshot {
	for {
		s := e.current.Load()
		s.mu.RLock()
		if !s.closed {
			return s
		}
		s.mu.RUnlock()
	}
}

func (s *snapshot) release() {
	s.mu.RUnlock()
}

func (e *Engine) Path() string { return e.path }

// Fingerprint identifies the currently loaded file contents.
func (e *Engine) Fingerprint() string {
	s := e.acquire()
	defer s.release()
	return fingerprint(s)
}

func fingerprint(s *snapshot) string {
	h := s.reader.Header()
	return fmt.Sprintf("%x-%x-%x-%x", h.FileSize, h.DocCount, h.TermCount, s.reader.ModTime().UnixNano())
}

// Search evaluates query and returns up to limit hits in ascending id order.
func (e *Engine) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	start := time.Now()
	s := e.acquire()
	defer s.release()

	node, err := s.exec.Parse(query)
	var res *executor.Result
	cacheHit := false
	switch {
	case err != nil:
		res, err = s.exec.Execute(ctx, query)
	case e.cache != nil:
		res, cacheHit, err = e.cache.GetOrCompute(ctx, fingerprint(s), node.String(), func() (*executor.Result, error) {
			return s.exec.ExecuteNode(ctx, query, node)
		})
	default:
		res, err = s.exec.ExecuteNode(ctx, query, node)
	}
	if err != nil {
		return nil, err
	}
	if cacheHit {
		e.metrics.ObserveQuery("hit", "hit", time.Since(start).Seconds(), res.Count)
	}

	ids := res.IDs
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return &SearchResponse{
		Query:     query,
		Canonical: res.Canonical,
		Total:     res.Count,
		Returned:  len(ids),
		Hits:      hits(s.reader, ids),
		Malformed: res.Malformed,
		CacheHit:  cacheHit,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Term reports the dictionary record for a raw term and its first limit
// documents. The term is normalized like a query term.
func (e *Engine) Term(term string, limit int) (*TermResponse, error) {
	s := e.acquire()
	defer s.release()

	node, err := s.exec.Parse(term)
	t, ok := node.(*parser.Term)
	if err != nil || !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%q is not a single term", term)
	}
	info, found := s.reader.Lookup(t.Value)
	if !found {
		return nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "term %q not in index", t.Value)
	}
	ids, err := s.reader.Postings(t.Value)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return &TermResponse{
		Term:             info.Term,
		Documents:        info.DocCount(),
		TotalOccurrences: info.TotalOccurrences,
		Hits:             hits(s.reader, ids),
	}, nil
}

func (e *Engine) Document(id uint32) (index.Document, error) {
	s := e.acquire()
	defer s.release()
	doc, ok := s.reader.Document(id)
	if !ok {
		return index.Document{}, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "document %d not in index", id)
	}
	return doc, nil
}

func (e *Engine) TopTerms(n int) []segment.TermInfo {
	s := e.acquire()
	defer s.release()
	return s.reader.TopTerms(n)
}

// Stats describes the loaded index.
type Stats struct {
	Path      string         `json:"path"`
	Header    segment.Header `json:"header"`
	LoadedAt  time.Time      `json:"loaded_at"`
	Documents int            `json:"documents"`
	Terms     int            `json:"terms"`
}

func (e *Engine) Stats() Stats {
	s := e.acquire()
	defer s.release()
	return Stats{
		Path:      e.path,
		Header:    s.reader.Header(),
		LoadedAt:  s.loadedAt,
		Documents: s.reader.DocCount(),
		Terms:     s.reader.TermCount(),
	}
}

// Close releases the current reader. Queries issued afterwards fail.
func (e *Engine) Close() error {
	s := e.current.Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader.Close()
}

func hits(r *segment.Reader, ids []uint32) []Hit {
	out := make([]Hit, 0, len(ids))
	for _, id := range ids {
		doc, _ := r.Document(id)
		out = append(out, Hit{ID: id, Title: doc.Title, Path: doc.Path})
	}
	return out
}
