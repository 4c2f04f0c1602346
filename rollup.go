package chronodex

import "sort"

// Rollup describes how incoming rows of a datasource are indexed: which
// fields become dimensions, which metrics the store computes, the time
// bucket width, and whether rows sharing a bucket and dimension tuple are
// pre-aggregated. Immutable once constructed; a Rollup that exists has
// passed column-namespace validation.
type Rollup struct {
	dimensions  DimensionsSpec
	aggregators []Aggregator
	granularity Granularity
	rollup      bool

	// Field names claimed by the aggregator set (inputs and outputs),
	// computed once at construction.
	exclusions map[string]bool
}

// RollupOption configures NewRollup.
type RollupOption func(*Rollup)

// DisableRollup keeps every input row as its own stored row instead of
// pre-aggregating rows that share a bucket and dimension tuple.
func DisableRollup() RollupOption {
	return func(r *Rollup) {
		r.rollup = false
	}
}

// NewRollup validates and creates a Rollup. Rollup is enabled unless
// DisableRollup is given. Construction fails with a SchemaConflictError if
// any column name is claimed twice across the reserved time column, the
// known dimensions, and the aggregator output names; the error lists every
// duplicate, not just the first.
func NewRollup(dimensions DimensionsSpec, aggregators []Aggregator, granularity Granularity, opts ...RollupOption) (Rollup, error) {
	r := Rollup{
		dimensions:  dimensions,
		aggregators: copyAggregators(aggregators),
		granularity: granularity,
		rollup:      true,
	}
	for _, o := range opts {
		o(&r)
	}

	r.exclusions = aggregatorExclusions(r.aggregators)

	if dups := duplicateColumns(dimensions, r.aggregators); len(dups) > 0 {
		return Rollup{}, &SchemaConflictError{Duplicates: dups}
	}
	return r, nil
}

// Dimensions returns the dimension spec.
func (r Rollup) Dimensions() DimensionsSpec { return r.dimensions }

// Aggregators returns the metric definitions in their supplied order.
func (r Rollup) Aggregators() []Aggregator {
	return copyAggregators(r.aggregators)
}

// Granularity returns the time-bucket width.
func (r Rollup) Granularity() Granularity { return r.granularity }

// IsRollup reports whether rows sharing a bucket and dimension tuple are
// pre-aggregated.
func (r Rollup) IsRollup() bool { return r.rollup }

// IsStringDimension reports whether the named field should be ingested as a
// string dimension. Any field name is accepted; fields never mentioned in
// the configuration produce an ordinary false (specific) or true
// (schemaless, unless excluded). Pure and safe for concurrent use.
func (r Rollup) IsStringDimension(timestampField, fieldName string) bool {
	switch d := r.dimensions.(type) {
	case SpecificDimensions:
		return d.IsDimension(fieldName)
	case SchemalessDimensions:
		return d.IsDimension(fieldName, timestampField, r.exclusions)
	default:
		// Unreachable: DimensionsSpec is sealed.
		return false
	}
}

// aggregatorExclusions collects every field name an aggregator reads or
// produces. Schemaless dimension discovery must skip these.
func aggregatorExclusions(aggregators []Aggregator) map[string]bool {
	set := make(map[string]bool)
	for _, a := range aggregators {
		set[a.Name()] = true
		for _, f := range a.fieldNames {
			set[f] = true
		}
	}
	return set
}

// duplicateColumns returns every name that appears more than once across
// the reserved time column, the known dimensions, and the aggregator
// outputs, sorted for reproducible reporting.
func duplicateColumns(dimensions DimensionsSpec, aggregators []Aggregator) []string {
	counts := map[string]int{TimeColumn: 1}
	for _, name := range dimensions.KnownDimensions() {
		counts[name]++
	}
	for _, a := range aggregators {
		counts[a.Name()]++
	}

	var dups []string
	for name, n := range counts {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	sort.Strings(dups)
	return dups
}

func copyAggregators(in []Aggregator) []Aggregator {
	out := make([]Aggregator, len(in))
	copy(out, in)
	return out
}
