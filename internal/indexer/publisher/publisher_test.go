package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/resilience"
)

type fakeRecorder struct {
	recs []catalog.BuildRecord
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, rec catalog.BuildRecord) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.recs = append(f.recs, rec)
	return int64(len(f.recs)), nil
}

type fakeProducer struct {
	failures int
	calls    int
	events   []kafka.Event
}

func (f *fakeProducer) Publish(_ context.Context, event kafka.Event) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("leader not available")
	}
	f.events = append(f.events, event)
	return nil
}

var fast = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func record() catalog.BuildRecord {
	return catalog.BuildRecord{
		Path:      "/srv/animals.bind",
		Documents: 3,
		Terms:     4,
		FileSize:  256,
		BuiltAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublishRecordsThenAnnounces(t *testing.T) {
	rec := &fakeRecorder{}
	prod := &fakeProducer{failures: 2}
	p := New(WithRecorder(rec), WithProducer(prod), WithRetry(fast))

	require.NoError(t, p.Publish(context.Background(), record()))
	require.Len(t, rec.recs, 1)
	require.Len(t, prod.events, 1)
	assert.Equal(t, 3, prod.calls)

	ev := prod.events[0]
	assert.Equal(t, "/srv/animals.bind", ev.Key)
	assert.Equal(t, IndexPublished{
		Path:      "/srv/animals.bind",
		BuildID:   1,
		Documents: 3,
		Terms:     4,
		FileSize:  256,
		BuiltAt:   record().BuiltAt,
	}, ev.Value)
}

func TestPublishJoinsFailures(t *testing.T) {
	dbErr := errors.New("connection refused")
	prod := &fakeProducer{failures: 10}
	p := New(WithRecorder(&fakeRecorder{err: dbErr}), WithProducer(prod), WithRetry(fast))

	err := p.Publish(context.Background(), record())
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "announcing /srv/animals.bind")
	assert.Equal(t, 3, prod.calls)
}

func TestPublishWithNothingConfigured(t *testing.T) {
	assert.NoError(t, New().Publish(context.Background(), record()))
}
