package chronodex

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var dataSourceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// DataSource binds a name, a timestamp spec, and a rollup descriptor into a
// complete ingestion schema for one store datasource.
type DataSource struct {
	name      string
	timestamp TimestampSpec
	rollup    Rollup
}

// NewDataSource validates and creates a DataSource.
// Name: ^[a-zA-Z0-9_-]+$, 1-64 chars.
func NewDataSource(name string, timestamp TimestampSpec, rollup Rollup) (DataSource, error) {
	if err := validateDataSourceName(name); err != nil {
		return DataSource{}, fmt.Errorf("%w: %s", ErrInvalidSpec, err)
	}
	if timestamp.Column() == "" {
		return DataSource{}, fmt.Errorf("%w: timestamp column is required", ErrInvalidSpec)
	}
	if !rollup.Granularity().IsValid() {
		return DataSource{}, fmt.Errorf("%w: invalid granularity %q", ErrInvalidSpec, rollup.Granularity())
	}
	return DataSource{name: name, timestamp: timestamp, rollup: rollup}, nil
}

func validateDataSourceName(name string) error {
	if name == "" {
		return fmt.Errorf("datasource name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("datasource name too long (max 64)")
	}
	if !dataSourceNameRegex.MatchString(name) {
		return fmt.Errorf("datasource name must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// Name returns the datasource name.
func (d DataSource) Name() string { return d.name }

// Timestamp returns the event-time spec.
func (d DataSource) Timestamp() TimestampSpec { return d.timestamp }

// Rollup returns the rollup descriptor.
func (d DataSource) Rollup() Rollup { return d.rollup }

// SpecMap serializes the full ingestion schema for the store.
func (d DataSource) SpecMap() map[string]any {
	metrics := make([]map[string]any, 0, len(d.rollup.aggregators))
	for _, a := range d.rollup.aggregators {
		metrics = append(metrics, a.SpecMap())
	}
	return map[string]any{
		"dataSource":     d.name,
		"timestampSpec":  d.timestamp.SpecMap(),
		"dimensionsSpec": d.rollup.dimensions.SpecMap(),
		"metricsSpec":    metrics,
		"granularitySpec": map[string]any{
			"segmentGranularity": string(d.rollup.granularity),
			"rollup":             d.rollup.rollup,
		},
	}
}

// dataSourceJSON is the wire form used for registry storage and the HTTP
// API. The presence of "dimensions" in dimensionsSpec distinguishes the two
// dimension strategies.
type dataSourceJSON struct {
	DataSource      string              `json:"dataSource"`
	TimestampSpec   timestampSpecJSON   `json:"timestampSpec"`
	DimensionsSpec  dimensionsSpecJSON  `json:"dimensionsSpec"`
	MetricsSpec     []aggregatorJSON    `json:"metricsSpec"`
	GranularitySpec granularitySpecJSON `json:"granularitySpec"`
}

type timestampSpecJSON struct {
	Column string `json:"column"`
	Format string `json:"format"`
}

type dimensionsSpecJSON struct {
	Dimensions          *[]string                `json:"dimensions,omitempty"`
	DimensionExclusions []string                 `json:"dimensionExclusions,omitempty"`
	SpatialDimensions   []SpatialDimensionSchema `json:"spatialDimensions"`
}

type aggregatorJSON struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	FieldName string `json:"fieldName,omitempty"`
}

type granularitySpecJSON struct {
	SegmentGranularity string `json:"segmentGranularity"`
	Rollup             bool   `json:"rollup"`
}

// MarshalJSON implements json.Marshaler.
func (d DataSource) MarshalJSON() ([]byte, error) {
	out := dataSourceJSON{
		DataSource: d.name,
		TimestampSpec: timestampSpecJSON{
			Column: d.timestamp.Column(),
			Format: string(d.timestamp.Format()),
		},
		GranularitySpec: granularitySpecJSON{
			SegmentGranularity: string(d.rollup.granularity),
			Rollup:             d.rollup.rollup,
		},
	}

	switch spec := d.rollup.dimensions.(type) {
	case SpecificDimensions:
		dims := spec.DimensionNames()
		out.DimensionsSpec = dimensionsSpecJSON{
			Dimensions:        &dims,
			SpatialDimensions: spatialSchemas(spec.spatial),
		}
	case SchemalessDimensions:
		out.DimensionsSpec = dimensionsSpecJSON{
			DimensionExclusions: spec.DimensionExclusions(),
			SpatialDimensions:   spatialSchemas(spec.spatial),
		}
	}

	out.MetricsSpec = make([]aggregatorJSON, 0, len(d.rollup.aggregators))
	for _, a := range d.rollup.aggregators {
		aj := aggregatorJSON{Type: string(a.aggType), Name: a.name}
		if len(a.fieldNames) == 1 {
			aj.FieldName = a.fieldNames[0]
		}
		out.MetricsSpec = append(out.MetricsSpec, aj)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. The descriptor is rebuilt
// through the public constructors, so hydrating an invalid spec fails the
// same way constructing one does.
func (d *DataSource) UnmarshalJSON(data []byte) error {
	var in dataSourceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode datasource: %w", err)
	}

	spatial := make([]SpatialDimension, 0, len(in.DimensionsSpec.SpatialDimensions))
	for _, s := range in.DimensionsSpec.SpatialDimensions {
		if len(s.Dims) == 0 {
			spatial = append(spatial, NewSpatialDimension(s.DimName))
		} else {
			spatial = append(spatial, NewCompoundSpatialDimension(s.DimName, s.Dims...))
		}
	}

	var dims DimensionsSpec
	if in.DimensionsSpec.Dimensions != nil {
		dims = NewSpecificDimensions(*in.DimensionsSpec.Dimensions, spatial)
	} else {
		dims = NewSchemalessDimensions(in.DimensionsSpec.DimensionExclusions, spatial)
	}

	aggregators := make([]Aggregator, 0, len(in.MetricsSpec))
	for _, aj := range in.MetricsSpec {
		agg := Aggregator{aggType: AggregatorType(aj.Type), name: aj.Name}
		if aj.FieldName != "" {
			agg.fieldNames = []string{aj.FieldName}
		}
		aggregators = append(aggregators, agg)
	}

	var opts []RollupOption
	if !in.GranularitySpec.Rollup {
		opts = append(opts, DisableRollup())
	}
	rollup, err := NewRollup(dims, aggregators, Granularity(in.GranularitySpec.SegmentGranularity), opts...)
	if err != nil {
		return err
	}

	ds, err := NewDataSource(in.DataSource, NewTimestampSpec(in.TimestampSpec.Column, TimestampFormat(in.TimestampSpec.Format)), rollup)
	if err != nil {
		return err
	}
	*d = ds
	return nil
}
