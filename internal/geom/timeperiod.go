package geom

import (
	"fmt"
	"time"
)

// iso8601Layouts are the timestamp layouts accepted in EO metadata,
// tried in order.
var iso8601Layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// TimePeriod is a time-of-interest interval. The interval is half-open:
// [Begin, End).
type TimePeriod struct {
	Begin time.Time
	End   time.Time
}

// NewTimePeriod parses two ISO-8601 timestamps into a TimePeriod.
func NewTimePeriod(begin, end string) (TimePeriod, error) {
	b, err := ParseISOTime(begin)
	if err != nil {
		return TimePeriod{}, fmt.Errorf("begin position: %w", err)
	}
	e, err := ParseISOTime(end)
	if err != nil {
		return TimePeriod{}, fmt.Errorf("end position: %w", err)
	}
	return TimePeriod{Begin: b, End: e}, nil
}

// ParseISOTime parses an ISO-8601 timestamp as found in GML time positions.
func ParseISOTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range iso8601Layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Overlaps reports whether the two half-open intervals intersect.
// Zero-length periods (Begin == End) are treated as instants.
func (p TimePeriod) Overlaps(o TimePeriod) bool {
	if p.Begin.Equal(p.End) {
		return !p.Begin.Before(o.Begin) && p.Begin.Before(o.End)
	}
	if o.Begin.Equal(o.End) {
		return !o.Begin.Before(p.Begin) && o.Begin.Before(p.End)
	}
	return p.Begin.Before(o.End) && o.Begin.Before(p.End)
}

// String returns the period in RFC3339 form.
func (p TimePeriod) String() string {
	return fmt.Sprintf("[%s, %s)", p.Begin.Format(time.RFC3339), p.End.Format(time.RFC3339))
}
