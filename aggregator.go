package chronodex

// AggregatorType identifies the store-side aggregation function.
type AggregatorType string

// Aggregator type constants, matching the store's metric spec types.
const (
	AggCount     AggregatorType = "count"
	AggLongSum   AggregatorType = "longSum"
	AggDoubleSum AggregatorType = "doubleSum"
	AggLongMin   AggregatorType = "longMin"
	AggLongMax   AggregatorType = "longMax"
	AggDoubleMin AggregatorType = "doubleMin"
	AggDoubleMax AggregatorType = "doubleMax"
)

// Aggregator is an immutable metric definition: a named computation over
// zero or more input fields. The rollup descriptor consumes it only through
// its output name and required input field names.
type Aggregator struct {
	aggType    AggregatorType
	name       string
	fieldNames []string
}

// Count creates a row-count aggregator. It reads no input fields.
func Count(name string) Aggregator {
	return Aggregator{aggType: AggCount, name: name}
}

// LongSum creates an integer sum aggregator over the given field.
func LongSum(name, fieldName string) Aggregator {
	return fieldAggregator(AggLongSum, name, fieldName)
}

// DoubleSum creates a floating-point sum aggregator over the given field.
func DoubleSum(name, fieldName string) Aggregator {
	return fieldAggregator(AggDoubleSum, name, fieldName)
}

// LongMin creates an integer minimum aggregator over the given field.
func LongMin(name, fieldName string) Aggregator {
	return fieldAggregator(AggLongMin, name, fieldName)
}

// LongMax creates an integer maximum aggregator over the given field.
func LongMax(name, fieldName string) Aggregator {
	return fieldAggregator(AggLongMax, name, fieldName)
}

// DoubleMin creates a floating-point minimum aggregator over the given field.
func DoubleMin(name, fieldName string) Aggregator {
	return fieldAggregator(AggDoubleMin, name, fieldName)
}

// DoubleMax creates a floating-point maximum aggregator over the given field.
func DoubleMax(name, fieldName string) Aggregator {
	return fieldAggregator(AggDoubleMax, name, fieldName)
}

func fieldAggregator(t AggregatorType, name, fieldName string) Aggregator {
	return Aggregator{aggType: t, name: name, fieldNames: []string{fieldName}}
}

// Type returns the store-side aggregation function type.
func (a Aggregator) Type() AggregatorType { return a.aggType }

// Name returns the output column name.
func (a Aggregator) Name() string { return a.name }

// FieldNames returns the input fields the aggregator reads. Empty for count.
func (a Aggregator) FieldNames() []string {
	return copyStrings(a.fieldNames)
}

// SpecMap serializes the aggregator for the store's metrics spec.
func (a Aggregator) SpecMap() map[string]any {
	m := map[string]any{
		"type": string(a.aggType),
		"name": a.name,
	}
	if len(a.fieldNames) == 1 {
		m["fieldName"] = a.fieldNames[0]
	} else if len(a.fieldNames) > 1 {
		m["fieldNames"] = copyStrings(a.fieldNames)
	}
	return m
}
