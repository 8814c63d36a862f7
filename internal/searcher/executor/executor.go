// Package executor evaluates parsed boolean queries against an index.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
)

// Result is the outcome of one query. A malformed query produces an empty
// result with Malformed set to the syntax error.
type Result struct {
	Query     string   `json:"query"`
	Canonical string   `json:"canonical,omitempty"`
	IDs       []uint32 `json:"ids"`
	Count     int      `json:"count"`
	Malformed string   `json:"malformed,omitempty"`
}

type Executor struct {
	src        Source
	parserOpts []parser.Option
	metrics    *metrics.Metrics
}

type Option func(*Executor)

func WithParserOptions(opts ...parser.Option) Option {
	return func(e *Executor) { e.parserOpts = append(e.parserOpts, opts...) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(src Source, opts ...Option) *Executor {
	e := &Executor{src: src}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse parses query with the executor's parser options.
func (e *Executor) Parse(query string) (parser.Node, error) {
	return parser.Parse(query, e.parserOpts...)
}

// Execute parses and evaluates query. Syntax errors are not returned: the
// result is empty and carries the error text. Only failures of the
// underlying source are returned as errors.
func (e *Executor) Execute(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	node, err := e.Parse(query)
	if err != nil {
		var se *parser.SyntaxError
		if !errors.As(err, &se) {
			return nil, err
		}
		logger.FromContext(ctx).Debug("malformed query", "query", query, "error", err)
		e.metrics.ObserveQuery("malformed", "none", time.Since(start).Seconds(), 0)
		return &Result{Query: query, IDs: []uint32{}, Malformed: se.Error()}, nil
	}
	return e.ExecuteNode(ctx, query, node)
}

// ExecuteNode evaluates an already parsed query.
func (e *Executor) ExecuteNode(ctx context.Context, query string, node parser.Node) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bm, err := Evaluate(node, e.src)
	if err != nil {
		e.metrics.ObserveQuery("error", "none", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("evaluating %q: %w", query, err)
	}
	res := &Result{
		Query:     query,
		Canonical: node.String(),
		IDs:       bm.ToArray(),
		Count:     int(bm.GetCardinality()),
	}
	resultType := "hit"
	if res.Count == 0 {
		resultType = "zero_result"
	}
	elapsed := time.Since(start)
	e.metrics.ObserveQuery(resultType, "none", elapsed.Seconds(), res.Count)
	logger.FromContext(ctx).Debug("query evaluated",
		"query", query,
		"canonical", res.Canonical,
		"results", res.Count,
		"latency_ms", elapsed.Milliseconds(),
	)
	return res, nil
}
