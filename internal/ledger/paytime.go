package ledger

import (
	"fmt"
	"strings"
	"time"
)

const (
	// WallClockLayout is the local date-time format the capture form edits
	WallClockLayout = "2006-01-02T15:04:05"
	// OffsetLayout always prints a numeric offset, including +00:00 for UTC
	OffsetLayout = "2006-01-02T15:04:05-07:00"
)

// Defaults applied to a fresh form and when recognition yields no category
const (
	DefaultCategoryID   int64 = 1
	DefaultCategoryName       = "餐饮"
)

var wallClockLayouts = []string{
	WallClockLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParsePayTime reads a pay time as produced by the form, the backend or a
// recognition model. Values with an explicit offset keep their instant and
// are moved into loc; wall-clock values are interpreted in loc.
func ParsePayTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty pay time")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pay time %q", value)
}

// OffsetTimestamp converts a wall-clock pay time in loc into an absolute
// timestamp carrying loc's UTC offset at that instant.
func OffsetTimestamp(wallClock string, loc *time.Location) (string, error) {
	t, err := ParsePayTime(wallClock, loc)
	if err != nil {
		return "", err
	}
	return t.Format(OffsetLayout), nil
}
