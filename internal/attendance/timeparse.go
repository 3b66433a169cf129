package attendance

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// unixMillisCutoff is 2000-01-01T00:00:00Z in milliseconds. Numeric
// timestamps below it are taken to be seconds.
const unixMillisCutoff = 946684800000

// maxUnixMillis bounds numeric timestamps to the range a JavaScript Date
// can hold.
const maxUnixMillis = 8.64e15

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05Z07:00",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.UnixDate,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// Layouts without an offset are read in the service location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	time.ANSIC,
}

// ParseScanTime normalizes a device supplied timestamp. It accepts
// ISO-8601 strings, Unix timestamps in seconds or milliseconds and a set of
// common date layouts. An empty input yields the zero time and no error.
func ParseScanTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, invalidTime(raw)
		}
		if math.Abs(v) < unixMillisCutoff {
			v *= 1000
		}
		if math.Abs(v) > maxUnixMillis {
			return time.Time{}, invalidTime(raw)
		}
		t := time.UnixMilli(int64(v)).UTC()
		if t.Year() < 0 || t.Year() > 9999 {
			return time.Time{}, invalidTime(raw)
		}
		return t, nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalidTime(raw)
}
