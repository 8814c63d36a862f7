package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/logger"
)

// Engine is the part of searcher.Engine the HTTP layer needs.
type Engine interface {
	Search(ctx context.Context, query string, limit int) (*searcher.SearchResponse, error)
	Term(term string, limit int) (*searcher.TermResponse, error)
	Document(id uint32) (index.Document, error)
	TopTerms(n int) []segment.TermInfo
	Stats() searcher.Stats
	Reload(ctx context.Context) error
}

type Handler struct {
	engine       Engine
	cache        *cache.QueryCache
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(engine Engine, queryCache *cache.QueryCache, defaultLimit, maxResults int) *Handler {
	return &Handler{
		engine:       engine,
		cache:        queryCache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/terms", h.TopTerms)
	mux.HandleFunc("GET /api/v1/terms/{term}", h.Term)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/index", h.Stats)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, ok := h.limit(w, r, "limit")
	if !ok {
		return
	}

	res, err := h.engine.Search(ctx, query, limit)
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeErr(w, err)
		return
	}
	log.Info("search completed",
		"query", query,
		"canonical", res.Canonical,
		"total_hits", res.Total,
		"returned", res.Returned,
		"cache_hit", res.CacheHit,
		"latency_ms", res.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r, "limit")
	if !ok {
		return
	}
	res, err := h.engine.Term(r.PathValue("term"), limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) TopTerms(w http.ResponseWriter, r *http.Request) {
	n, ok := h.limit(w, r, "top")
	if !ok {
		return
	}
	terms := h.engine.TopTerms(n)
	out := make([]map[string]any, 0, len(terms))
	for _, t := range terms {
		out = append(out, map[string]any{
			"term":              t.Term,
			"documents":         t.DocCount(),
			"total_occurrences": t.TotalOccurrences,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"terms": out})
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an unsigned 32-bit integer")
		return
	}
	doc, err := h.engine.Document(uint32(id))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reload(r.Context()); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// limit reads a positive integer query parameter, falling back to the
// default and clamping to the configured maximum.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request, param string) (int, bool) {
	limit := h.defaultLimit
	if s := r.URL.Query().Get(param); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, param+" must be a positive integer")
			return 0, false
		}
		limit = parsed
	}
	if limit > h.maxResults {
		limit = h.maxResults
	}
	return limit, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		msg = appErr.Message
	} else if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}
