package post

import (
	"log/slog"
	"time"

	"github.com/araddon/dateparse"
)

// timestampLayouts is tried in order before falling back to free-form
// parsing. The list covers the ActivityPub `published` variants and the
// ISO form rendered timelines put in the <time datetime> attribute.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05",
}

// TimestampParser turns source timestamp strings into UTC times.
// It is total: when nothing matches it returns the current time and
// reports low confidence, so callers always get a usable value.
type TimestampParser struct {
	now func() time.Time
}

func NewTimestampParser() *TimestampParser {
	return &TimestampParser{now: time.Now}
}

// Parse returns the parsed UTC time and whether the value is trustworthy.
// An empty or unparseable input yields "now" and confident=false.
func (p *TimestampParser) Parse(value string) (t time.Time, confident bool) {
	if value == "" {
		return p.now().UTC(), false
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}

	if parsed, err := dateparse.ParseAny(value); err == nil {
		return parsed.UTC(), true
	}

	slog.Warn("Could not parse timestamp, falling back to current time", "value", value)
	return p.now().UTC(), false
}
