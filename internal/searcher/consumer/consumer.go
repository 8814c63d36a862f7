// Package consumer reloads the served index when a build announces a new
// version of it on Kafka.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/kafka"
)

// Reloader is the part of searcher.Engine the consumer drives.
type Reloader interface {
	Path() string
	Reload(ctx context.Context) error
}

// HandleIndexPublished returns a MessageHandler that reloads r when an event
// names the file it serves. Undecodable events and other paths are
// committed and skipped; a failed reload is not committed, so it is retried
// after the consumer group rebalances.
func HandleIndexPublished(r Reloader) kafka.MessageHandler {
	logger := slog.Default().With("component", "reload-consumer")
	served := canonicalPath(r.Path())
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[publisher.IndexPublished](value)
		if err != nil {
			logger.Error("failed to decode index event", "error", err, "key", string(key))
			return nil
		}
		if canonicalPath(event.Path) != served {
			logger.Debug("ignoring index event for another path", "path", event.Path)
			return nil
		}
		if err := r.Reload(ctx); err != nil {
			return fmt.Errorf("reloading after build %d: %w", event.BuildID, err)
		}
		logger.Info("index reloaded from event",
			"path", event.Path,
			"build_id", event.BuildID,
			"documents", event.Documents,
		)
		return nil
	}
}

func canonicalPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return filepath.Clean(p)
}
