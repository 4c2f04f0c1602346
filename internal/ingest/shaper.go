// Package ingest shapes raw events into store rows and pre-aggregates them
// per granularity bucket and dimension tuple.
package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/kailas-cloud/chronodex"
)

// Row is a shaped event: a granularity bucket, the string dimension values
// (spatial included), and the seeded metric values by aggregator output
// name.
type Row struct {
	Bucket  time.Time
	Dims    map[string]string
	Metrics map[string]float64
}

// Shaper turns raw events of one datasource into Rows according to its
// rollup descriptor. Immutable; safe for concurrent use.
type Shaper struct {
	ds          chronodex.DataSource
	tsColumn    string
	aggregators []chronodex.Aggregator
	spatial     []chronodex.SpatialDimension
}

// NewShaper creates a shaper for the datasource. It rejects aggregator
// types the gateway cannot fold, so unsupported specs fail at registration
// instead of silently corrupting buckets.
func NewShaper(ds chronodex.DataSource) (*Shaper, error) {
	aggregators := ds.Rollup().Aggregators()
	for _, a := range aggregators {
		if !foldable(a.Type()) {
			return nil, fmt.Errorf("aggregator %q: type %q not supported by the gateway", a.Name(), a.Type())
		}
	}

	var spatial []chronodex.SpatialDimension
	switch spec := ds.Rollup().Dimensions().(type) {
	case chronodex.SpecificDimensions:
		spatial = spec.SpatialDimensions()
	case chronodex.SchemalessDimensions:
		spatial = spec.SpatialDimensions()
	}

	return &Shaper{
		ds:          ds,
		tsColumn:    ds.Timestamp().Column(),
		aggregators: aggregators,
		spatial:     spatial,
	}, nil
}

// Shape converts one raw event into a Row.
func (s *Shaper) Shape(event map[string]any) (Row, error) {
	raw, ok := event[s.tsColumn]
	if !ok {
		return Row{}, fmt.Errorf("event has no timestamp field %q", s.tsColumn)
	}
	t, err := s.ds.Timestamp().Parse(raw)
	if err != nil {
		return Row{}, err
	}

	row := Row{
		Bucket:  s.ds.Rollup().Granularity().Bucket(t),
		Dims:    make(map[string]string),
		Metrics: make(map[string]float64, len(s.aggregators)),
	}

	rollup := s.ds.Rollup()
	for field, value := range event {
		if field == s.tsColumn {
			continue
		}
		if rollup.IsStringDimension(s.tsColumn, field) {
			row.Dims[field] = stringValue(value)
		}
	}

	for _, sp := range s.spatial {
		coord, ok := spatialValue(sp, event)
		if ok {
			row.Dims[sp.Name()] = coord
		}
	}

	for _, a := range s.aggregators {
		seedMetric(a, event, row.Metrics)
	}

	return row, nil
}

// wgs84Bounds is the valid (lon, lat) envelope for two-field coordinates.
var wgs84Bounds = geom.NewBounds(geom.XY).Set(-180, -90, 180, 90)

// spatialValue resolves the coordinate string of a spatial dimension.
// Single-field dimensions pass the field's value through; two-field
// dimensions are taken as (lat, lon) and rejected when the point falls
// outside the WGS84 envelope; wider dimensions are joined in field order.
func spatialValue(sp chronodex.SpatialDimension, event map[string]any) (string, bool) {
	fields := sp.FieldNames()
	if len(fields) == 0 {
		v, ok := event[sp.Name()]
		if !ok {
			return "", false
		}
		return stringValue(v), true
	}

	coords := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, ok := event[f]
		if !ok {
			return "", false
		}
		n, ok := floatValue(v)
		if !ok {
			return "", false
		}
		coords = append(coords, n)
	}

	if len(coords) == 2 {
		// Store convention is "lat,lon"; geom points are (x=lon, y=lat).
		p := geom.NewPointFlat(geom.XY, []float64{coords[1], coords[0]})
		if !wgs84Bounds.OverlapsPoint(geom.XY, p.FlatCoords()) {
			return "", false
		}
		return formatCoord(p.Y()) + "," + formatCoord(p.X()), true
	}

	out := formatCoord(coords[0])
	for _, c := range coords[1:] {
		out += "," + formatCoord(c)
	}
	return out, true
}

// seedMetric writes the aggregator's contribution of one event into
// metrics. Counts always contribute 1 and sums treat a missing input as 0,
// but min/max are seeded only when the input field is present: a phantom 0
// from an absent field must not win a fold.
func seedMetric(a chronodex.Aggregator, event map[string]any, metrics map[string]float64) {
	switch a.Type() {
	case chronodex.AggCount:
		metrics[a.Name()] = 1
	case chronodex.AggLongSum, chronodex.AggDoubleSum:
		v, _ := inputValue(a, event)
		metrics[a.Name()] = v
	default:
		if v, ok := inputValue(a, event); ok {
			metrics[a.Name()] = v
		}
	}
}

func inputValue(a chronodex.Aggregator, event map[string]any) (float64, bool) {
	inputs := a.FieldNames()
	if len(inputs) == 0 {
		return 0, false
	}
	v, ok := event[inputs[0]]
	if !ok {
		return 0, false
	}
	return floatValue(v)
}

func foldable(t chronodex.AggregatorType) bool {
	switch t {
	case chronodex.AggCount,
		chronodex.AggLongSum, chronodex.AggDoubleSum,
		chronodex.AggLongMin, chronodex.AggLongMax,
		chronodex.AggDoubleMin, chronodex.AggDoubleMax:
		return true
	}
	return false
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
