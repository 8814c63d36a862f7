// Package cmd provides the bindex CLI commands.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/logger"
)

// globalOptions carries the persistent flags and the configuration they
// resolve to.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        *config.Config
}

// NewRootCmd creates the root command for the bindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "bindex",
		Short: "Build and query BIND binary inverted indexes",
		Long: `bindex tokenizes a directory of text files into a compact binary
inverted index and evaluates boolean queries (&&, ||, !, parentheses)
against it, from the command line or over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if opts.logFormat != "" {
				cfg.Logging.Format = opts.logFormat
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func newNormalizer(cfg *config.Config) *tokenizer.Normalizer {
	return tokenizer.New(tokenizer.Options{
		MinLength: cfg.Normalizer.MinTermLength,
		StopWords: cfg.Normalizer.StopWords,
		Stem:      cfg.Normalizer.Stem,
	})
}

// parserOptions makes query terms canonical the same way index terms were.
func parserOptions(cfg *config.Config, norm *tokenizer.Normalizer) []parser.Option {
	opts := []parser.Option{parser.WithNormalizer(norm)}
	if cfg.Search.LegacyNegation {
		opts = append(opts, parser.WithLegacyNegation())
	}
	return opts
}
