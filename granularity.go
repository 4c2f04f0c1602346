package chronodex

import "time"

// Granularity is the time-bucket width used to group rows before rollup.
type Granularity string

// Granularity constants.
const (
	GranularityNone       Granularity = "none"
	GranularitySecond     Granularity = "second"
	GranularityMinute     Granularity = "minute"
	GranularityFiveMinute Granularity = "fiveMinute"
	GranularityHour       Granularity = "hour"
	GranularityDay        Granularity = "day"
	GranularityAll        Granularity = "all"
)

// IsValid checks if the granularity is supported.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityNone, GranularitySecond, GranularityMinute,
		GranularityFiveMinute, GranularityHour, GranularityDay, GranularityAll:
		return true
	}
	return false
}

// Bucket truncates t (in UTC) to the start of its granularity bucket.
// GranularityNone returns t unchanged; GranularityAll maps everything to the
// zero time.
func (g Granularity) Bucket(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularitySecond:
		return t.Truncate(time.Second)
	case GranularityMinute:
		return t.Truncate(time.Minute)
	case GranularityFiveMinute:
		return t.Truncate(5 * time.Minute)
	case GranularityHour:
		return t.Truncate(time.Hour)
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityAll:
		return time.Time{}
	default:
		return t
	}
}
