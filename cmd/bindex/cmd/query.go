package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/config"
)

type queryFlags struct {
	limit int
	json  bool
}

// querySource is an evaluable index that can also resolve document ids.
type querySource interface {
	executor.Source
	document(id uint32) (index.Document, bool)
	Close() error
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "query <source> <expression...>",
		Short: "Evaluate a boolean query against an index file or a corpus directory",
		Long: `Query evaluates a boolean expression over terms joined by && (and),
|| (or), ! (not), and parentheses. Operators have no precedence and group
left to right: a || b && c means (a || b) && c.

source is either a BIND file or a corpus directory, which is indexed in
memory first. Remaining arguments are joined with spaces, so quoting the
expression is optional unless the shell would interpret it.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd.OutOrStdout(), opts.cfg, args[0], strings.Join(args[1:], " "), flags)
		},
	}
	cmd.Flags().IntVar(&flags.limit, "limit", 20, "maximum matching documents to list (0 lists all)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "output as JSON")
	return cmd
}

func runQuery(ctx context.Context, out io.Writer, cfg *config.Config, source, expr string, flags queryFlags) error {
	src, err := openSource(ctx, cfg, source)
	if err != nil {
		return err
	}
	defer src.Close()

	norm := newNormalizer(cfg)
	exec := executor.New(src, executor.WithParserOptions(parserOptions(cfg, norm)...))
	res, err := exec.Execute(ctx, expr)
	if err != nil {
		return err
	}
	if res.Malformed != "" {
		slog.Warn("malformed query, no documents match", "query", expr, "reason", res.Malformed)
	}

	ids := res.IDs
	if flags.limit > 0 && len(ids) > flags.limit {
		ids = ids[:flags.limit]
	}
	docs := make([]index.Document, 0, len(ids))
	for _, id := range ids {
		doc, _ := src.document(id)
		docs = append(docs, doc)
	}

	if flags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"query":     res.Query,
			"canonical": res.Canonical,
			"malformed": res.Malformed,
			"count":     res.Count,
			"ids":       res.IDs,
			"documents": docs,
		})
	}
	if res.Canonical != "" {
		fmt.Fprintf(out, "query: %s\n", res.Canonical)
	}
	fmt.Fprintf(out, "matches: %d\n", res.Count)
	for _, d := range docs {
		fmt.Fprintf(out, "  %d\t%s\n", d.ID, d.Path)
	}
	if len(docs) < res.Count {
		fmt.Fprintf(out, "  ... and %d more\n", res.Count-len(docs))
	}
	return nil
}

func openSource(ctx context.Context, cfg *config.Config, source string) (querySource, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("opening query source: %w", err)
	}
	if !info.IsDir() {
		r, err := segment.Open(source)
		if err != nil {
			return nil, err
		}
		return fileSource{r}, nil
	}
	ix, _, err := indexer.NewBuilder(cfg.Build, newNormalizer(cfg)).BuildDir(ctx, source)
	if err != nil {
		return nil, err
	}
	return memorySource{ix}, nil
}

type fileSource struct{ *segment.Reader }

func (s fileSource) document(id uint32) (index.Document, bool) { return s.Document(id) }

type memorySource struct{ *index.Index }

func (s memorySource) document(id uint32) (index.Document, bool) {
	if int64(id) >= int64(len(s.Documents)) {
		return index.Document{}, false
	}
	return s.Documents[id], true
}

func (memorySource) Close() error { return nil }
