package chronodex

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampFormat names a supported event-time encoding.
type TimestampFormat string

// Timestamp format constants.
const (
	// TimestampAuto tries RFC 3339 first, then epoch milliseconds.
	TimestampAuto   TimestampFormat = "auto"
	TimestampISO    TimestampFormat = "iso"
	TimestampMillis TimestampFormat = "millis"
	TimestampPosix  TimestampFormat = "posix"
)

// TimestampSpec declares which field holds the event time and how to parse
// it. The rollup descriptor only consumes the column name; parsing is used
// by ingestion.
type TimestampSpec struct {
	column string
	format TimestampFormat
}

// NewTimestampSpec creates a timestamp spec. An empty format defaults to
// auto.
func NewTimestampSpec(column string, format TimestampFormat) TimestampSpec {
	if format == "" {
		format = TimestampAuto
	}
	return TimestampSpec{column: column, format: format}
}

// Column returns the event-time field name.
func (ts TimestampSpec) Column() string { return ts.column }

// Format returns the declared time encoding.
func (ts TimestampSpec) Format() TimestampFormat { return ts.format }

// Parse interprets a raw event-time value according to the spec's format.
func (ts TimestampSpec) Parse(value any) (time.Time, error) {
	switch ts.format {
	case TimestampISO:
		return parseISO(value)
	case TimestampMillis:
		ms, err := parseNumber(value)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case TimestampPosix:
		sec, err := parseNumber(value)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(sec, 0).UTC(), nil
	case TimestampAuto:
		if t, err := parseISO(value); err == nil {
			return t, nil
		}
		ms, err := parseNumber(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse timestamp %v", value)
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unknown timestamp format %q", ts.format)
	}
}

// SpecMap serializes the timestamp spec for the ingestion configuration.
func (ts TimestampSpec) SpecMap() map[string]any {
	return map[string]any{
		"column": ts.column,
		"format": string(ts.format),
	}
}

func parseISO(value any) (time.Time, error) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp %v is not a string", value)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return t.UTC(), nil
}

func parseNumber(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse timestamp: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("timestamp %v is not numeric", value)
	}
}
