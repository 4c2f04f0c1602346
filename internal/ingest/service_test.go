package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/chronodex"
	"github.com/kailas-cloud/chronodex/internal/metrics"
)

type specSourceMock struct {
	ds    chronodex.DataSource
	err   error
	calls int
}

func (m *specSourceMock) Get(context.Context, string) (chronodex.DataSource, error) {
	m.calls++
	return m.ds, m.err
}

func newTestService(t *testing.T, specs SpecSource, sink Sink, cfg Config) *Service {
	t.Helper()
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Minute
	}
	return NewService(specs, sink, cfg, zap.NewNop())
}

func TestService_IngestCountsDrops(t *testing.T) {
	ds := makeDataSource(t, chronodex.Dimensions("host"),
		[]chronodex.Aggregator{chronodex.Count("count")})
	specs := &specSourceMock{ds: ds}
	svc := newTestService(t, specs, &captureSink{}, Config{MaxBufferedRows: 100})

	res, err := svc.Ingest(context.Background(), "test", []map[string]any{
		{"ts": "2026-03-14T15:09:26Z", "host": "a"},
		{"ts": "not a time", "host": "b"},
		{"ts": "2026-03-14T15:09:27Z", "host": "c"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.BatchID)
	require.Equal(t, 2, res.Received)
	require.Equal(t, 1, res.Dropped)
}

func TestService_BatchLimitRejected(t *testing.T) {
	ds := makeDataSource(t, chronodex.Dimensions("host"), nil)
	svc := newTestService(t, &specSourceMock{ds: ds}, &captureSink{},
		Config{MaxBatchSize: 2, MaxBufferedRows: 100})

	_, err := svc.Ingest(context.Background(), "test", []map[string]any{
		{"ts": "2026-03-14T15:09:26Z"},
		{"ts": "2026-03-14T15:09:27Z"},
		{"ts": "2026-03-14T15:09:28Z"},
	})
	require.ErrorIs(t, err, chronodex.ErrInvalidSpec)
}

func TestService_UnknownDataSource(t *testing.T) {
	specs := &specSourceMock{err: chronodex.ErrNotFound}
	svc := newTestService(t, specs, &captureSink{}, Config{MaxBufferedRows: 100})

	_, err := svc.Ingest(context.Background(), "missing", []map[string]any{
		{"ts": "2026-03-14T15:09:26Z"},
	})
	require.ErrorIs(t, err, chronodex.ErrNotFound)
}

func TestService_PipelineIsCached(t *testing.T) {
	ds := makeDataSource(t, chronodex.Dimensions("host"),
		[]chronodex.Aggregator{chronodex.Count("count")})
	specs := &specSourceMock{ds: ds}
	svc := newTestService(t, specs, &captureSink{}, Config{MaxBufferedRows: 100})

	batch := []map[string]any{{"ts": "2026-03-14T15:09:26Z", "host": "a"}}
	_, err := svc.Ingest(context.Background(), "test", batch)
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), "test", batch)
	require.NoError(t, err)
	require.Equal(t, 1, specs.calls)
}

func TestService_InvalidateFlushesAndRefetches(t *testing.T) {
	ds := makeDataSource(t, chronodex.Dimensions("host"),
		[]chronodex.Aggregator{chronodex.Count("count")})
	specs := &specSourceMock{ds: ds}
	sink := &captureSink{}
	svc := newTestService(t, specs, sink, Config{MaxBufferedRows: 100})

	batch := []map[string]any{{"ts": "2026-03-14T15:09:26Z", "host": "a"}}
	_, err := svc.Ingest(context.Background(), "test", batch)
	require.NoError(t, err)

	svc.Invalidate(context.Background(), "test")
	require.Len(t, sink.flushes, 1, "invalidate should flush buffered rows")

	_, err = svc.Ingest(context.Background(), "test", batch)
	require.NoError(t, err)
	require.Equal(t, 2, specs.calls, "invalidate should drop the cached spec")
}

func TestService_FullBufferFlushes(t *testing.T) {
	ds := makeDataSource(t, chronodex.Dimensions("host"),
		[]chronodex.Aggregator{chronodex.Count("count")})
	sink := &captureSink{}
	svc := newTestService(t, &specSourceMock{ds: ds}, sink, Config{MaxBufferedRows: 2})

	_, err := svc.Ingest(context.Background(), "test", []map[string]any{
		{"ts": "2026-03-14T15:09:26Z", "host": "a"},
		{"ts": "2026-03-14T15:09:26Z", "host": "b"},
	})
	require.NoError(t, err)
	require.Len(t, sink.flushes, 1)
	require.Len(t, sink.flushes[0], 2)
}

func TestService_FullBufferFlushResetsGauge(t *testing.T) {
	ds := makeDataSource(t, chronodex.Dimensions("host"),
		[]chronodex.Aggregator{chronodex.Count("count")})
	sink := &captureSink{}
	svc := newTestService(t, &specSourceMock{ds: ds}, sink, Config{MaxBufferedRows: 2})

	_, err := svc.Ingest(context.Background(), "gauge-test", []map[string]any{
		{"ts": "2026-03-14T15:09:26Z", "host": "a"},
		{"ts": "2026-03-14T15:09:26Z", "host": "b"},
	})
	require.NoError(t, err)
	require.Len(t, sink.flushes, 1)

	got := testutil.ToFloat64(metrics.BufferedRows.WithLabelValues("gauge-test"))
	require.Zero(t, got, "gauge must reflect the buffer after a size-triggered flush")
}

func TestService_RunFlushesOnCancel(t *testing.T) {
	ds := makeDataSource(t, chronodex.Dimensions("host"),
		[]chronodex.Aggregator{chronodex.Count("count")})
	sink := &captureSink{}
	svc := newTestService(t, &specSourceMock{ds: ds}, sink,
		Config{MaxBufferedRows: 100, FlushInterval: time.Hour})

	_, err := svc.Ingest(context.Background(), "test", []map[string]any{
		{"ts": "2026-03-14T15:09:26Z", "host": "a"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	require.Len(t, sink.flushes, 1, "cancel should trigger a final flush")
}
