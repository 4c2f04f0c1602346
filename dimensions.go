package chronodex

// TimeColumn is the store's reserved time column. Every ingested row is
// bucketed under this column, so no dimension or metric may reuse the name.
// Must match the store's own identifier; not configurable.
const TimeColumn = "__time"

// SpatialDimensionSchema is the wire shape of a spatial dimension in the
// store's ingestion configuration. An empty Dims list means "derive the
// coordinate from the dimension's own name".
type SpatialDimensionSchema struct {
	DimName string   `json:"dimName"`
	Dims    []string `json:"dims"`
}

// SpatialDimension is an immutable derived dimension computed from one or
// more scalar fields, used for geospatial indexing.
type SpatialDimension struct {
	name       string
	fieldNames []string
}

// NewSpatialDimension creates a spatial dimension backed by a single field.
// The field's own value is the coordinate source.
func NewSpatialDimension(fieldName string) SpatialDimension {
	return SpatialDimension{name: fieldName}
}

// NewCompoundSpatialDimension creates a spatial dimension whose coordinate is
// combined from the given fields, in order.
func NewCompoundSpatialDimension(name string, fieldNames ...string) SpatialDimension {
	names := make([]string, len(fieldNames))
	copy(names, fieldNames)
	return SpatialDimension{name: name, fieldNames: names}
}

// Name returns the derived dimension name.
func (s SpatialDimension) Name() string { return s.name }

// FieldNames returns the underlying coordinate fields. Empty for
// single-field spatial dimensions.
func (s SpatialDimension) FieldNames() []string {
	names := make([]string, len(s.fieldNames))
	copy(names, s.fieldNames)
	return names
}

// Schema returns the serializable schema value. Dims is never nil so the
// single-field variant serializes as an explicit empty list.
func (s SpatialDimension) Schema() SpatialDimensionSchema {
	dims := make([]string, len(s.fieldNames))
	copy(dims, s.fieldNames)
	return SpatialDimensionSchema{DimName: s.name, Dims: dims}
}

// DimensionsSpec describes how the set of dimension columns of a datasource
// is determined. Exactly two implementations exist: SpecificDimensions (an
// explicit allow-list) and SchemalessDimensions (everything not excluded).
// The interface is sealed; no further variants can be defined outside this
// package.
type DimensionsSpec interface {
	// KnownDimensions returns the dimension names known before any data is
	// seen, in serialization order.
	KnownDimensions() []string
	// WithSpatialDimensions returns a copy with the spatial dimension list
	// replaced wholesale. The receiver is unchanged.
	WithSpatialDimensions(spatial []SpatialDimension) DimensionsSpec
	// SpecMap returns the strategy's ingestion configuration object.
	SpecMap() map[string]any

	sealedDimensionsSpec()
}

var (
	_ DimensionsSpec = SpecificDimensions{}
	_ DimensionsSpec = SchemalessDimensions{}
)

// SpecificDimensions declares the dimension set up front: a field is a
// dimension iff it is listed. Order is preserved end to end because the
// store's dimension encoding is position-sensitive.
type SpecificDimensions struct {
	dimensions []string
	spatial    []SpatialDimension
}

// NewSpecificDimensions creates an allow-list dimension spec. Uniqueness of
// names is not checked here; NewRollup validates the combined namespace.
func NewSpecificDimensions(dimensions []string, spatial []SpatialDimension) SpecificDimensions {
	return SpecificDimensions{
		dimensions: copyStrings(dimensions),
		spatial:    copySpatial(spatial),
	}
}

// Dimensions is shorthand for NewSpecificDimensions with no spatial
// dimensions.
func Dimensions(names ...string) SpecificDimensions {
	return NewSpecificDimensions(names, nil)
}

// DimensionNames returns the explicit dimension list, without spatial names.
func (d SpecificDimensions) DimensionNames() []string {
	return copyStrings(d.dimensions)
}

// SpatialDimensions returns the attached spatial dimensions.
func (d SpecificDimensions) SpatialDimensions() []SpatialDimension {
	return copySpatial(d.spatial)
}

// KnownDimensions returns the explicit dimensions followed by the derived
// spatial dimension names, in their supplied order.
func (d SpecificDimensions) KnownDimensions() []string {
	names := make([]string, 0, len(d.dimensions)+len(d.spatial))
	names = append(names, d.dimensions...)
	for _, s := range d.spatial {
		names = append(names, s.Name())
	}
	return names
}

// IsDimension reports whether the field is in the allow-list. Spatial
// dimension names are deliberately not part of this test; spatial status is
// tracked separately. A field that is not listed is never a dimension under
// this spec, regardless of any exclusion set.
func (d SpecificDimensions) IsDimension(fieldName string) bool {
	for _, name := range d.dimensions {
		if name == fieldName {
			return true
		}
	}
	return false
}

// WithSpatialDimensions returns a copy with the spatial list replaced.
func (d SpecificDimensions) WithSpatialDimensions(spatial []SpatialDimension) DimensionsSpec {
	return NewSpecificDimensions(d.dimensions, spatial)
}

// SpecMap serializes the spec for the store's ingestion configuration.
func (d SpecificDimensions) SpecMap() map[string]any {
	return map[string]any{
		"dimensions":        copyStrings(d.dimensions),
		"spatialDimensions": spatialSchemas(d.spatial),
	}
}

func (SpecificDimensions) sealedDimensionsSpec() {}

// SchemalessDimensions discovers dimensions from the data stream: a field is
// a dimension unless it is the timestamp field, feeds or is produced by an
// aggregator, or is explicitly excluded.
type SchemalessDimensions struct {
	exclusions map[string]bool
	spatial    []SpatialDimension
}

// NewSchemalessDimensions creates a schemaless spec with the given
// exclusions and spatial dimensions. Order and duplicates in the exclusion
// list are discarded.
func NewSchemalessDimensions(exclusions []string, spatial []SpatialDimension) SchemalessDimensions {
	set := make(map[string]bool, len(exclusions))
	for _, name := range exclusions {
		set[name] = true
	}
	return SchemalessDimensions{exclusions: set, spatial: copySpatial(spatial)}
}

// Schemaless creates a schemaless spec that excludes nothing.
func Schemaless() SchemalessDimensions {
	return NewSchemalessDimensions(nil, nil)
}

// SchemalessWithExclusions creates a schemaless spec with the given
// exclusions and no spatial dimensions.
func SchemalessWithExclusions(exclusions ...string) SchemalessDimensions {
	return NewSchemalessDimensions(exclusions, nil)
}

// DimensionExclusions returns the exclusion set as a slice; use it as a
// set, the order is unspecified.
func (d SchemalessDimensions) DimensionExclusions() []string {
	names := make([]string, 0, len(d.exclusions))
	for name := range d.exclusions {
		names = append(names, name)
	}
	return names
}

// SpatialDimensions returns the attached spatial dimensions.
func (d SchemalessDimensions) SpatialDimensions() []SpatialDimension {
	return copySpatial(d.spatial)
}

// KnownDimensions returns only the derived spatial dimension names; the rest
// of the dimension set is discovered at ingest time by the store.
func (d SchemalessDimensions) KnownDimensions() []string {
	names := make([]string, 0, len(d.spatial))
	for _, s := range d.spatial {
		names = append(names, s.Name())
	}
	return names
}

// IsDimension reports whether the field is treated as a dimension given the
// timestamp field and the owning descriptor's aggregator-derived exclusions.
// Unlike SpecificDimensions, this test cannot be answered by the spec alone.
func (d SchemalessDimensions) IsDimension(fieldName, timestampField string, extraExclusions map[string]bool) bool {
	if fieldName == timestampField {
		return false
	}
	if extraExclusions[fieldName] {
		return false
	}
	return !d.exclusions[fieldName]
}

// WithSpatialDimensions returns a copy with the spatial list replaced.
func (d SchemalessDimensions) WithSpatialDimensions(spatial []SpatialDimension) DimensionsSpec {
	set := make(map[string]bool, len(d.exclusions))
	for name := range d.exclusions {
		set[name] = true
	}
	return SchemalessDimensions{exclusions: set, spatial: copySpatial(spatial)}
}

// SpecMap serializes the spec for the store's ingestion configuration. The
// absence of a "dimensions" key is what signals schemaless to the store.
func (d SchemalessDimensions) SpecMap() map[string]any {
	return map[string]any{
		"dimensionExclusions": d.DimensionExclusions(),
		"spatialDimensions":   spatialSchemas(d.spatial),
	}
}

func (SchemalessDimensions) sealedDimensionsSpec() {}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copySpatial(in []SpatialDimension) []SpatialDimension {
	out := make([]SpatialDimension, len(in))
	copy(out, in)
	return out
}

func spatialSchemas(in []SpatialDimension) []SpatialDimensionSchema {
	out := make([]SpatialDimensionSchema, len(in))
	for i, s := range in {
		out[i] = s.Schema()
	}
	return out
}
