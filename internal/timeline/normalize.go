// Package timeline turns raw worksheet rows into sorted timeline events.
// Everything here is pure except Pipeline and Store, which drive I/O.
package timeline

import (
	"fmt"
	"regexp"
	"strings"

	"profiled/internal/links"
	"profiled/internal/model"
	"profiled/internal/sheet"
)

var absoluteURLPattern = regexp.MustCompile(`(?i)^https?://`)

// NormalizeOptions parameterizes the normalizer.
type NormalizeOptions struct {
	// ImageFolder prefixes bare image filenames. Defaults to "images".
	ImageFolder string
}

func (o NormalizeOptions) folder() string {
	if o.ImageFolder == "" {
		return "images"
	}
	return o.ImageFolder
}

// FormatDate renders the Date column cell.
//
// Native dates use their UTC calendar fields: "YYYY.MM.DD", with " HH:MM"
// appended only when the time of day is not midnight. Formula cells yield
// their computed result, anything else its text.
func FormatDate(c sheet.RawCell) string {
	if c.IsDate {
		t := c.Time.UTC()
		s := fmt.Sprintf("%04d.%02d.%02d", t.Year(), int(t.Month()), t.Day())
		if t.Hour() != 0 || t.Minute() != 0 {
			s += fmt.Sprintf(" %02d:%02d", t.Hour(), t.Minute())
		}
		return s
	}
	if c.IsFormula() {
		return c.Text
	}
	return c.Value()
}

// ResolveImage turns the ImageRef cell into something an <img> can load.
func ResolveImage(raw, folder string) string {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return ""
	case absoluteURLPattern.MatchString(s):
		return links.Normalize(s)
	case !strings.Contains(s, "/"):
		return folder + "/" + s
	default:
		return s
	}
}

// Normalize converts one row. It reports false when the row has no date
// and must be dropped.
func Normalize(row sheet.RawRow, opts NormalizeOptions) (model.Event, bool) {
	date := FormatDate(row.Cell(sheet.ColDate))
	if strings.TrimSpace(date) == "" {
		return model.Event{}, false
	}
	return model.Event{
		Row:       row.Number,
		Date:      date,
		Artist:    row.Cell(sheet.ColArtist).Value(),
		EventName: row.Cell(sheet.ColEventName).Value(),
		Location:  row.Cell(sheet.ColLocation).Value(),
		Seat:      row.Cell(sheet.ColSeat).Value(),
		ImageURL:  ResolveImage(row.Cell(sheet.ColImage).Value(), opts.folder()),
	}, true
}

// NormalizeRows converts rows in order, dropping dateless ones.
func NormalizeRows(rows []sheet.RawRow, opts NormalizeOptions) []model.Event {
	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		if ev, ok := Normalize(r, opts); ok {
			events = append(events, ev)
		}
	}
	return events
}
