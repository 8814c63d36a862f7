package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/consumer"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bindex/pkg/redis"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve <index_file>",
		Short: "Serve boolean search over HTTP",
		Long: `Serve opens index_file and answers queries on /api/v1/search.
The index is reloaded on POST /api/v1/index/reload and, when Kafka is
enabled, whenever a build announces a new version of the same file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.cfg
			if port > 0 {
				cfg.Server.Port = port
			}
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("listening on port %d: %w", cfg.Server.Port, err)
			}
			return runServe(cmd.Context(), ln, &cfg, args[0])
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides server.port)")
	return cmd
}

// runServe serves on ln until ctx is cancelled.
func runServe(ctx context.Context, ln net.Listener, cfg *config.Config, path string) error {
	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := m.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			redisClient = rc
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	engineOpts := []searcher.Option{
		searcher.WithPostingCache(cfg.Reader.PostingCacheSize),
		searcher.WithParserOptions(parserOptions(cfg, newNormalizer(cfg))...),
		searcher.WithMetrics(m),
	}
	if queryCache != nil {
		engineOpts = append(engineOpts, searcher.WithQueryCache(queryCache))
	}
	engine, err := searcher.Open(path, engineOpts...)
	if err != nil {
		return err
	}
	defer engine.Close()
	stats := engine.Stats()
	slog.Info("index loaded", "path", path, "documents", stats.Documents, "terms", stats.Terms)

	checker := health.NewChecker()
	checker.Register("index", health.Ping(func(context.Context) error {
		_, err := os.Stat(engine.Path())
		return err
	}, true))
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, false))
	}

	if cfg.Kafka.Enabled {
		c := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished, consumer.HandleIndexPublished(engine))
		go func() {
			if err := c.Run(ctx); err != nil {
				slog.Error("index event consumer stopped", "error", err)
			}
		}()
		slog.Info("reloading on index events", "topic", cfg.Kafka.Topics.IndexPublished)
	}

	mux := http.NewServeMux()
	handler.New(engine, queryCache, cfg.Search.DefaultLimit, cfg.Search.MaxResults).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("search service stopped")
	return nil
}
