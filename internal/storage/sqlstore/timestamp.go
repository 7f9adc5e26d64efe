package sqlstore

import (
	"fmt"
	"time"
)

// timestampLayouts are the text forms a created_at column may hold: RFC 3339,
// modernc's _time_format=sqlite and time.Time.String forms, and zone-less
// ISO 8601 / CURRENT_TIMESTAMP values, which are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// parseTimestamp converts a scanned column value into a time. Drivers hand
// back time.Time for typed columns and strings or bytes for TEXT columns.
func parseTimestamp(v any) (time.Time, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
