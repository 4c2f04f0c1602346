package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/chronodex"
	"github.com/kailas-cloud/chronodex/internal/metrics"
)

// SpecSource resolves a datasource schema by name.
type SpecSource interface {
	Get(ctx context.Context, name string) (chronodex.DataSource, error)
}

// Result reports the outcome of one ingested batch.
type Result struct {
	BatchID  string `json:"batchId"`
	Received int    `json:"received"`
	Dropped  int    `json:"dropped"`
}

// Service routes event batches into per-datasource shapers and rollup
// buffers.
type Service struct {
	specs         SpecSource
	sink          Sink
	logger        *zap.Logger
	maxBatch      int
	maxBuffered   int
	flushInterval time.Duration

	mu        sync.Mutex
	pipelines map[string]*pipeline
}

type pipeline struct {
	shaper *Shaper
	buffer *Buffer
}

// Config bounds the service's batches and buffers.
type Config struct {
	MaxBatchSize    int
	MaxBufferedRows int
	FlushInterval   time.Duration
}

// NewService creates the ingest service.
func NewService(specs SpecSource, sink Sink, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		specs:         specs,
		sink:          sink,
		logger:        logger,
		maxBatch:      cfg.MaxBatchSize,
		maxBuffered:   cfg.MaxBufferedRows,
		flushInterval: cfg.FlushInterval,
		pipelines:     make(map[string]*pipeline),
	}
}

// Ingest shapes and buffers a batch of raw events. Events whose timestamp
// cannot be parsed are dropped and counted, not rejected as a batch.
func (s *Service) Ingest(ctx context.Context, dataSource string, events []map[string]any) (Result, error) {
	if s.maxBatch > 0 && len(events) > s.maxBatch {
		return Result{}, fmt.Errorf("%w: batch of %d exceeds limit %d",
			chronodex.ErrInvalidSpec, len(events), s.maxBatch)
	}

	p, err := s.pipeline(ctx, dataSource)
	if err != nil {
		return Result{}, err
	}

	res := Result{BatchID: uuid.NewString()}
	full := false
	for _, event := range events {
		row, err := p.shaper.Shape(event)
		if err != nil {
			res.Dropped++
			metrics.IngestDroppedTotal.WithLabelValues(dataSource, "timestamp").Inc()
			continue
		}
		if p.buffer.Add(row) {
			full = true
		}
		res.Received++
	}

	metrics.IngestEventsTotal.WithLabelValues(dataSource).Add(float64(res.Received))

	if full {
		if err := p.buffer.Flush(ctx); err != nil {
			s.logger.Error("size-triggered flush failed",
				zap.String("datasource", dataSource), zap.Error(err))
		}
	}
	// Read the buffer size after the flush branch so the gauge never
	// reports already-flushed rows.
	metrics.BufferedRows.WithLabelValues(dataSource).Set(float64(p.buffer.Len()))
	return res, nil
}

// Invalidate drops the cached pipeline of a datasource, flushing whatever
// it still holds. Call after the spec is deleted or replaced.
func (s *Service) Invalidate(ctx context.Context, dataSource string) {
	s.mu.Lock()
	p, ok := s.pipelines[dataSource]
	delete(s.pipelines, dataSource)
	s.mu.Unlock()

	if ok {
		if err := p.buffer.Flush(ctx); err != nil {
			s.logger.Error("flush on invalidate failed",
				zap.String("datasource", dataSource), zap.Error(err))
		}
	}
}

// Run flushes all buffers on the configured interval until ctx is
// cancelled, then performs a final flush.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushAll(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			s.flushAll(ctx)
		}
	}
}

func (s *Service) flushAll(ctx context.Context) {
	s.mu.Lock()
	pipelines := make(map[string]*pipeline, len(s.pipelines))
	for name, p := range s.pipelines {
		pipelines[name] = p
	}
	s.mu.Unlock()

	for name, p := range pipelines {
		if err := p.buffer.Flush(ctx); err != nil {
			s.logger.Error("flush failed", zap.String("datasource", name), zap.Error(err))
		}
		metrics.BufferedRows.WithLabelValues(name).Set(float64(p.buffer.Len()))
	}
}

func (s *Service) pipeline(ctx context.Context, dataSource string) (*pipeline, error) {
	s.mu.Lock()
	if p, ok := s.pipelines[dataSource]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	// Resolve outside the lock; spec lookups can hit the database.
	ds, err := s.specs.Get(ctx, dataSource)
	if err != nil {
		return nil, err
	}
	shaper, err := NewShaper(ds)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chronodex.ErrInvalidSpec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pipelines[dataSource]; ok {
		return p, nil
	}
	p := &pipeline{
		shaper: shaper,
		buffer: NewBuffer(ds, s.sink, s.maxBuffered),
	}
	s.pipelines[dataSource] = p
	return p, nil
}
