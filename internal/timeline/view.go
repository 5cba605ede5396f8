package timeline

import (
	"time"

	"profiled/internal/model"
)

// Placeholder is the literal some sheet exports leave in empty cells.
const Placeholder = "undefined"

// DefaultEmbargoDays is how long a seat stays hidden after the event date.
const DefaultEmbargoDays = 7

// ViewOptions controls which optional fields are shown.
type ViewOptions struct {
	Location    *time.Location
	EmbargoDays int
	ImageFolder string
}

func (o ViewOptions) embargoDays() int {
	if o.EmbargoDays <= 0 {
		return DefaultEmbargoDays
	}
	return o.EmbargoDays
}

// View is an event plus the decisions about its optional fields.
type View struct {
	model.Event

	ShowLocation bool
	ShowSeat     bool
	ShowImage    bool

	// SeatRevealAt is when the seat becomes visible; zero if the date
	// does not parse.
	SeatRevealAt time.Time
}

// BuildView decides the optional fields of ev as of now.
func BuildView(ev model.Event, now time.Time, opts ViewOptions) View {
	v := View{Event: ev}
	v.ShowLocation = present(ev.Location)

	if t, ok := ParseDate(ev.Date, opts.Location); ok {
		v.SeatRevealAt = t.AddDate(0, 0, opts.embargoDays())
		v.ShowSeat = present(ev.Seat) && !now.Before(v.SeatRevealAt)
	}

	folder := opts.ImageFolder
	if folder == "" {
		folder = "images"
	}
	v.ShowImage = ev.ImageURL != "" && ev.ImageURL != folder+"/"
	return v
}

// BuildViews maps BuildView over events, preserving order.
func BuildViews(events []model.Event, now time.Time, opts ViewOptions) []View {
	out := make([]View, len(events))
	for i, ev := range events {
		out[i] = BuildView(ev, now, opts)
	}
	return out
}

func present(s string) bool {
	return s != "" && s != Placeholder
}
