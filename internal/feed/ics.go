// Package feed publishes the timeline as an iCalendar feed.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"profiled/internal/model"
	"profiled/internal/timeline"
)

// timedEventLength is used for events that carry a start time; the sheet
// has no end column.
const timedEventLength = 2 * time.Hour

// Options controls feed generation.
type Options struct {
	Name   string
	Domain string // used as the UID suffix
	View   timeline.ViewOptions
	// BaseURL, if set, is used to make local image paths absolute.
	BaseURL string
}

// ICS writes events as a VCALENDAR. Events whose date does not parse are
// skipped; seats honour the same embargo as the page.
func ICS(w io.Writer, events []model.Event, now time.Time, opts Options) (int, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//profiled//timeline//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.View.Location != nil {
		cal.SetXWRTimezone(opts.View.Location.String())
	}

	domain := opts.Domain
	if domain == "" {
		domain = "profiled"
	}

	written := 0
	for _, ev := range events {
		start, ok := timeline.ParseDate(ev.Date, opts.View.Location)
		if !ok {
			continue
		}
		v := timeline.BuildView(ev, now, opts.View)

		e := cal.AddEvent(uid(ev, domain))
		e.SetDtStampTime(now)
		e.SetSummary(summary(ev))
		if v.ShowLocation {
			e.SetLocation(ev.Location)
		}
		if desc := description(v); desc != "" {
			e.SetDescription(desc)
		}
		if v.ShowImage {
			e.SetURL(absolute(opts.BaseURL, ev.ImageURL))
		}

		if hasTime(ev.Date) {
			e.SetStartAt(start)
			e.SetEndAt(start.Add(timedEventLength))
		} else {
			e.SetAllDayStartAt(start)
			e.SetAllDayEndAt(start.AddDate(0, 0, 1))
		}
		written++
	}

	_, err := io.WriteString(w, cal.Serialize())
	return written, err
}

// uid is stable across refreshes as long as the row keeps its position;
// the row number separates otherwise identical entries.
func uid(ev model.Event, domain string) string {
	key := strconv.Itoa(ev.Row) + "\x00" + ev.Date + "\x00" + ev.Artist + "\x00" + ev.EventName
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:10]) + "@" + domain
}

func summary(ev model.Event) string {
	switch {
	case ev.Artist != "" && ev.EventName != "":
		return ev.Artist + " - " + ev.EventName
	case ev.Artist != "":
		return ev.Artist
	default:
		return ev.EventName
	}
}

func description(v timeline.View) string {
	var parts []string
	if v.ShowSeat {
		parts = append(parts, "Seat: "+v.Seat)
	}
	return strings.Join(parts, "\n")
}

func hasTime(date string) bool {
	return strings.Contains(date, ":")
}

func absolute(base, u string) string {
	if base == "" || strings.Contains(u, "://") {
		return u
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
}
