package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/postgres"
)

type buildFlags struct {
	metricsFile string
	workers     int
	top         int
	noPublish   bool
}

func newBuildCmd(opts *globalOptions) *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build <corpus_dir> <output_index_file>",
		Short: "Index a directory of text files into a BIND file",
		Long: `Build tokenizes every file with the configured extension (default .txt)
directly inside corpus_dir, assigns document ids in path order, and writes
the index atomically to output_index_file.

When the Postgres catalog or Kafka publication is enabled in the config,
the finished build is also recorded and announced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.cfg
			if flags.workers > 0 {
				cfg.Build.Workers = flags.workers
			}
			return runBuild(cmd.Context(), cmd.OutOrStdout(), &cfg, args[0], args[1], flags)
		},
	}
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "write build metrics in Prometheus text format to this file")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "tokenization workers (overrides build.workers)")
	cmd.Flags().IntVar(&flags.top, "top", 10, "number of most frequent terms to print")
	cmd.Flags().BoolVar(&flags.noPublish, "no-publish", false, "skip the catalog and Kafka announcement")
	return cmd
}

func runBuild(ctx context.Context, out io.Writer, cfg *config.Config, corpus, output string, flags buildFlags) error {
	m := metrics.New(nil)
	builder := indexer.NewBuilder(cfg.Build, newNormalizer(cfg), indexer.WithMetrics(m))

	ix, stats, err := builder.BuildDir(ctx, corpus)
	if err != nil {
		return err
	}
	header, err := segment.WriteFile(ctx, output, ix, cfg.Build.LockTimeout)
	if err != nil {
		return err
	}
	m.ObserveIndexWritten(header.FileSize)
	builtAt := time.Now()

	printBuildStats(out, output, stats, header, flags.top)

	if flags.metricsFile != "" {
		if err := m.WriteToTextfile(flags.metricsFile); err != nil {
			return fmt.Errorf("writing metrics file: %w", err)
		}
	}
	if !flags.noPublish {
		abs, err := filepath.Abs(output)
		if err != nil {
			abs = output
		}
		rec := catalog.NewBuildRecord(abs, stats, header, builtAt)
		if err := publish(ctx, cfg, rec); err != nil {
			slog.Warn("index written but publication incomplete", "path", abs, "error", err)
		}
	}
	return nil
}

// publish records and announces a build on whichever of Postgres and Kafka
// are enabled.
func publish(ctx context.Context, cfg *config.Config, rec catalog.BuildRecord) error {
	var popts []publisher.Option
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		store := catalog.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		popts = append(popts, publisher.WithRecorder(store))
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished)
		defer producer.Close()
		popts = append(popts, publisher.WithProducer(producer))
	}
	if len(popts) == 0 {
		return nil
	}
	return publisher.New(popts...).Publish(ctx, rec)
}

func printBuildStats(out io.Writer, path string, stats *indexer.BuildStats, header segment.Header, top int) {
	fmt.Fprintf(out, "Index written to %s\n", path)
	fmt.Fprintf(out, "  documents:       %s", humanize.Comma(int64(stats.TotalDocuments)))
	if stats.SkippedDocuments > 0 {
		fmt.Fprintf(out, " (%d unreadable)", stats.SkippedDocuments)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  corpus size:     %s\n", humanize.Bytes(stats.TotalBytes))
	fmt.Fprintf(out, "  tokens:          %s\n", humanize.Comma(int64(stats.TotalTokens)))
	fmt.Fprintf(out, "  unique terms:    %s\n", humanize.Comma(int64(stats.UniqueTerms)))
	fmt.Fprintf(out, "  avg term length: %.2f\n", stats.AvgTermLength)
	if stats.RejectedTerms > 0 {
		fmt.Fprintf(out, "  rejected terms:  %d\n", stats.RejectedTerms)
	}
	fmt.Fprintf(out, "  index size:      %s\n", humanize.Bytes(uint64(header.FileSize)))
	fmt.Fprintf(out, "  elapsed:         %s\n", stats.Elapsed.Round(time.Millisecond))

	terms := stats.TopTerms(top)
	if len(terms) == 0 {
		return
	}
	fmt.Fprintf(out, "\nTop %d terms by document frequency:\n", len(terms))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  TERM\tDOCS\tOCCURRENCES")
	for _, t := range terms {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.Term, humanize.Comma(int64(t.Documents)), humanize.Comma(int64(t.Occurrences)))
	}
	tw.Flush()
}
