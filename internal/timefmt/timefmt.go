// Package timefmt converts question timestamps to the backend's fixed
// +05:30 convention and formats them for display.
package timefmt

import (
	"strings"
	"time"
)

// Layout is the ISO-8601 form used on the wire, millisecond precision.
const Layout = "2006-01-02T15:04:05.000-07:00"

const displayLayout = "02/01/2006, 15:04:05"

// IST is the fixed UTC+5:30 zone all timestamps are expressed in.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// Now formats t in IST wire form. It is the fallback when the backend
// omits updated_at in an update response.
func Now(t time.Time) string {
	return t.In(IST).Format(Layout)
}

// ToIST normalises a backend timestamp to the +05:30 form. Values that
// already carry +05:30 are returned untouched, values without a zone are
// taken as UTC, and anything unparseable is returned as given.
func ToIST(ts string) string {
	if ts == "" {
		return ts
	}
	if strings.Contains(ts, "+05:30") || strings.Contains(ts, "+0530") {
		return ts
	}
	t, ok := parse(ts)
	if !ok {
		return ts
	}
	return Now(t)
}

// Display renders a timestamp as "dd/mm/yyyy, HH:MM:SS As/Kol".
func Display(ts string) string {
	if ts == "" {
		return "N/A"
	}
	t, ok := parse(ts)
	if !ok {
		return ts + " (format error)"
	}
	return t.In(IST).Format(displayLayout) + " As/Kol"
}

func parse(ts string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, true
	}
	// Compact offsets such as +0530.
	if t, err := time.Parse("2006-01-02T15:04:05.999999999-0700", ts); err == nil {
		return t, true
	}
	if !strings.HasSuffix(ts, "Z") {
		if t, err := time.Parse(time.RFC3339Nano, ts+"Z"); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
