// Package indexer turns a corpus of text files into an inverted index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/scanner"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
)

// Normalizer converts raw document bytes to terms. Implementations must be
// deterministic and safe for concurrent use.
type Normalizer interface {
	Normalize(data []byte) []string
}

type Builder struct {
	cfg     config.BuildConfig
	norm    Normalizer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type BuilderOption func(*Builder)

func WithMetrics(m *metrics.Metrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

func NewBuilder(cfg config.BuildConfig, norm Normalizer, opts ...BuilderOption) *Builder {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	b := &Builder{
		cfg:    cfg,
		norm:   norm,
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildDir scans dir for corpus files and builds an index over them.
func (b *Builder) BuildDir(ctx context.Context, dir string) (*index.Index, *BuildStats, error) {
	paths, err := scanner.Scan(dir, b.cfg.Extension)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("%w: no %s files in %s", apperrors.ErrCorpusNotFound, b.cfg.Extension, dir)
	}
	return b.Build(ctx, paths)
}

// processed is the per-document outcome of the parallel phase.
type processed struct {
	doc      index.Document
	counts   map[string]uint32
	tokens   uint64
	bytes    uint64
	rejected int
	err      error
}

// Build indexes paths in order; the position of a path is its document id.
// Documents are tokenized concurrently in batches and merged in id order, so
// the result does not depend on the worker count.
func (b *Builder) Build(ctx context.Context, paths []string) (*index.Index, *BuildStats, error) {
	start := time.Now()
	if uint64(len(paths)) > math.MaxUint32 {
		return nil, nil, fmt.Errorf("%w: %d documents", apperrors.ErrIndexTooLarge, len(paths))
	}
	b.logger.Info("build started", "documents", len(paths), "workers", b.cfg.Workers)

	mem := index.NewMemoryIndex()
	docs := make([]index.Document, 0, len(paths))
	stats := &BuildStats{TotalDocuments: len(paths)}

	for lo := 0; lo < len(paths); lo += b.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("build cancelled: %w", err)
		}
		hi := min(lo+b.cfg.BatchSize, len(paths))
		batch := make([]processed, hi-lo)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.Workers)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				batch[i-lo] = b.process(uint32(i), paths[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, fmt.Errorf("build cancelled: %w", err)
		}

		for _, p := range batch {
			if p.err != nil {
				b.logger.Warn("skipping unreadable document",
					"doc_id", p.doc.ID,
					"path", p.doc.Path,
					"error", p.err,
				)
				stats.SkippedDocuments++
			}
			mem.AddDocument(p.doc.ID, p.counts)
			docs = append(docs, p.doc)
			stats.TotalTokens += p.tokens
			stats.TotalBytes += p.bytes
			stats.RejectedTerms += p.rejected
		}
		b.logger.Debug("batch merged",
			"indexed", hi,
			"terms", mem.TermCount(),
			"mem_size", mem.Size(),
		)
	}

	ix := &index.Index{Documents: docs, Terms: mem.Snapshot()}
	stats.UniqueTerms = len(ix.Terms)
	if len(ix.Terms) > 0 {
		var termBytes int
		for _, e := range ix.Terms {
			termBytes += len(e.Term)
		}
		stats.AvgTermLength = float64(termBytes) / float64(len(ix.Terms))
	}
	stats.Elapsed = time.Since(start)
	stats.terms = ix.Terms

	b.metrics.ObserveBuild(stats.TotalDocuments-stats.SkippedDocuments, stats.SkippedDocuments,
		stats.RejectedTerms, stats.Elapsed.Seconds())
	b.logger.Info("build finished",
		"documents", stats.TotalDocuments,
		"skipped", stats.SkippedDocuments,
		"terms", stats.UniqueTerms,
		"tokens", stats.TotalTokens,
		"rejected_terms", stats.RejectedTerms,
		"elapsed", stats.Elapsed,
	)
	return ix, stats, nil
}

// process reads and tokenizes one document. A read failure is reported in
// the result, and the document keeps its id with zero tokens.
func (b *Builder) process(id uint32, path string) processed {
	p := processed{
		doc: index.Document{ID: id, Title: scanner.Title(path), Path: path},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		p.err = err
		return p
	}
	p.bytes = uint64(len(data))
	p.doc.ByteSize = uint32(min(p.bytes, math.MaxUint32))

	terms := b.norm.Normalize(data)
	p.counts = make(map[string]uint32, len(terms)/2+1)
	for _, term := range terms {
		if len(term) > tokenizer.MaxTermBytes {
			p.rejected++
			b.logger.Warn("rejecting over-long term",
				"doc_id", id,
				"bytes", len(term),
			)
			continue
		}
		p.counts[term]++
		p.tokens++
	}
	p.doc.TokenCount = uint32(min(p.tokens, math.MaxUint32))
	return p
}

// BuildStats summarizes a build for reporting.
type BuildStats struct {
	TotalDocuments   int
	SkippedDocuments int
	TotalTokens      uint64
	UniqueTerms      int
	TotalBytes       uint64
	AvgTermLength    float64
	RejectedTerms    int
	Elapsed          time.Duration

	terms []index.TermEntry
}

// TermFrequency is one row of a top-terms report.
type TermFrequency struct {
	Term        string `json:"term"`
	Documents   int    `json:"documents"`
	Occurrences uint64 `json:"occurrences"`
}

// TopTerms returns the n terms found in the most documents, ties broken by
// term. It returns nil when there is nothing to report.
func (s *BuildStats) TopTerms(n int) []TermFrequency {
	if s == nil || n <= 0 || len(s.terms) == 0 {
		return nil
	}
	all := make([]TermFrequency, len(s.terms))
	for i, e := range s.terms {
		all[i] = TermFrequency{
			Term:        e.Term,
			Documents:   len(e.Postings.DocIDs),
			Occurrences: e.Postings.TotalOccurrences,
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Documents != all[j].Documents {
			return all[i].Documents > all[j].Documents
		}
		return all[i].Term < all[j].Term
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}
