// Package publisher announces freshly written index files: it records the
// build in the catalog and emits an IndexPublished event so running search
// servers reload.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/resilience"
)

// IndexPublished is the event payload on the index-published topic.
type IndexPublished struct {
	Path      string    `json:"path"`
	BuildID   int64     `json:"build_id,omitempty"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	FileSize  uint32    `json:"file_size"`
	BuiltAt   time.Time `json:"built_at"`
}

// Recorder persists build records.
type Recorder interface {
	Record(ctx context.Context, rec catalog.BuildRecord) (int64, error)
}

// EventProducer sends one event.
type EventProducer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	recorder Recorder
	producer EventProducer
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

type Option func(*Publisher)

func WithRecorder(r Recorder) Option {
	return func(p *Publisher) { p.recorder = r }
}

func WithProducer(ep EventProducer) Option {
	return func(p *Publisher) { p.producer = ep }
}

func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Publisher) { p.retry = cfg }
}

func New(opts ...Option) *Publisher {
	p := &Publisher{
		retry:  resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond},
		logger: slog.Default().With("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish records rec, then announces it. Both steps are attempted; their
// failures are joined.
func (p *Publisher) Publish(ctx context.Context, rec catalog.BuildRecord) error {
	var errs []error
	if p.recorder != nil {
		id, err := p.recorder.Record(ctx, rec)
		if err != nil {
			p.logger.Error("failed to record build", "path", rec.Path, "error", err)
			errs = append(errs, err)
		} else {
			rec.ID = id
		}
	}
	if p.producer != nil {
		event := kafka.Event{
			Key: rec.Path,
			Value: IndexPublished{
				Path:      rec.Path,
				BuildID:   rec.ID,
				Documents: rec.Documents,
				Terms:     rec.Terms,
				FileSize:  rec.FileSize,
				BuiltAt:   rec.BuiltAt,
			},
		}
		err := resilience.Retry(ctx, "announce index", p.retry, func(ctx context.Context) error {
			return p.producer.Publish(ctx, event)
		})
		if err != nil {
			p.logger.Error("failed to announce index", "path", rec.Path, "error", err)
			errs = append(errs, fmt.Errorf("announcing %s: %w", rec.Path, err))
		} else {
			p.logger.Info("index announced", "path", rec.Path, "build_id", rec.ID)
		}
	}
	return errors.Join(errs...)
}
