package ingest

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kailas-cloud/chronodex"
)

// Sink receives rows when a buffer flushes.
type Sink interface {
	Flush(ctx context.Context, dataSource string, rows []Row) error
}

// Buffer accumulates shaped rows for one datasource. With rollup enabled,
// rows sharing a bucket and dimension tuple are folded into one row as they
// arrive; with rollup disabled every row is kept as-is.
type Buffer struct {
	ds      chronodex.DataSource
	sink    Sink
	maxRows int

	mu   sync.Mutex
	rows map[string]*Row
}

// NewBuffer creates a buffer flushing to the sink. maxRows bounds the
// number of buffered rows; Add reports when a flush is due.
func NewBuffer(ds chronodex.DataSource, sink Sink, maxRows int) *Buffer {
	return &Buffer{
		ds:      ds,
		sink:    sink,
		maxRows: maxRows,
		rows:    make(map[string]*Row),
	}
}

// Add merges (or stores) a row. Returns true when the buffer has reached
// its row bound and should be flushed.
func (b *Buffer) Add(row Row) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := b.rowKey(row)
	if existing, ok := b.rows[key]; ok {
		mergeRow(existing, row, b.ds.Rollup().Aggregators())
	} else {
		r := row
		b.rows[key] = &r
	}
	return len(b.rows) >= b.maxRows
}

// Len returns the number of buffered rows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Flush hands all buffered rows to the sink and clears the buffer. The
// rows are swapped out before the sink runs, so ingestion is never blocked
// behind a slow flush; on sink error the rows are gone (at-most-once).
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.rows
	b.rows = make(map[string]*Row)
	b.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(pending))
	for _, r := range pending {
		rows = append(rows, *r)
	}
	return b.sink.Flush(ctx, b.ds.Name(), rows)
}

// rowKey builds the rollup identity of a row: the bucket plus the sorted
// dimension tuple. Rollup-disabled datasources get a unique key per row so
// nothing merges.
func (b *Buffer) rowKey(row Row) string {
	if !b.ds.Rollup().IsRollup() {
		return uuid.NewString()
	}

	names := make([]string, 0, len(row.Dims))
	for name := range row.Dims {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(row.Bucket.UnixNano(), 10))
	for _, name := range names {
		sb.WriteByte(0x1f)
		sb.WriteString(name)
		sb.WriteByte(0x1e)
		sb.WriteString(row.Dims[name])
	}
	return sb.String()
}

// mergeRow folds src into dst. Min/max metrics may be absent from either
// side when no event carried the input field; an absent value never takes
// part in the fold.
func mergeRow(dst *Row, src Row, aggregators []chronodex.Aggregator) {
	for _, a := range aggregators {
		name := a.Name()
		srcVal, srcOK := src.Metrics[name]
		if !srcOK {
			continue
		}
		dstVal, dstOK := dst.Metrics[name]
		switch a.Type() {
		case chronodex.AggCount, chronodex.AggLongSum, chronodex.AggDoubleSum:
			dst.Metrics[name] = dstVal + srcVal
		case chronodex.AggLongMin, chronodex.AggDoubleMin:
			if !dstOK || srcVal < dstVal {
				dst.Metrics[name] = srcVal
			}
		case chronodex.AggLongMax, chronodex.AggDoubleMax:
			if !dstOK || srcVal > dstVal {
				dst.Metrics[name] = srcVal
			}
		}
	}
}
