package timeline

import (
	"slices"
	"strings"
	"time"

	"profiled/internal/model"
)

var dateLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04",
	"2006-1-2 15:04:05",
	"2006-1-2T15:04",
	"2006-1-2T15:04:05",
}

// ParseDate reads an event date string ("2024.03.01", "2024/3/1 19:30",
// "2024-03-01T19:30:00Z", ...) in loc. It reports false for anything else.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}

	norm := strings.NewReplacer(".", "-", "/", "-").Replace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, norm, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Sort orders events newest first. Events whose date does not parse go
// last whichever side of a comparison they are on, keeping sheet order.
func Sort(events []model.Event, loc *time.Location) {
	type keyed struct {
		ev model.Event
		t  time.Time
		ok bool
	}
	ks := make([]keyed, len(events))
	for i, e := range events {
		t, ok := ParseDate(e.Date, loc)
		ks[i] = keyed{ev: e, t: t, ok: ok}
	}

	slices.SortStableFunc(ks, func(a, b keyed) int {
		switch {
		case !a.ok && !b.ok:
			return 0
		case !a.ok:
			return 1
		case !b.ok:
			return -1
		}
		return b.t.Compare(a.t)
	})

	for i := range ks {
		events[i] = ks[i].ev
	}
}
