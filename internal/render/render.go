// Package render produces the HTML for the profile page and its timeline.
// It is the only package that emits markup; the decisions about which
// fields appear are made in package timeline.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"time"

	"profiled/internal/config"
	"profiled/internal/links"
	"profiled/internal/timeline"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// TimelineData is the input of the "timeline" template.
type TimelineData struct {
	State timeline.State
	Error string
	Items []timeline.View
}

// PageData is the input of the "page" template.
type PageData struct {
	Profile  config.ProfileConfig
	Avatar   string
	Gallery  []string
	Timeline TimelineData
}

// NewTimelineData applies the visibility rules to snap as of now.
func NewTimelineData(snap timeline.Snapshot, now time.Time, opts timeline.ViewOptions) TimelineData {
	d := TimelineData{State: snap.State, Error: snap.Error}
	if snap.State == timeline.StateReady {
		d.Items = timeline.BuildViews(snap.Events, now, opts)
	}
	return d
}

// NewPageData assembles the page, normalizing avatar and gallery links the
// same way timeline images are.
func NewPageData(p config.ProfileConfig, tl TimelineData) PageData {
	gallery := make([]string, 0, len(p.Gallery))
	for _, g := range p.Gallery {
		if g != "" {
			gallery = append(gallery, links.Normalize(g))
		}
	}
	return PageData{
		Profile:  p,
		Avatar:   links.Normalize(p.Avatar),
		Gallery:  gallery,
		Timeline: tl,
	}
}

// Timeline writes the timeline container's contents.
func Timeline(w io.Writer, d TimelineData) error {
	return templates.ExecuteTemplate(w, "timeline", d)
}

// TimelineHTML is Timeline into a string.
func TimelineHTML(d TimelineData) (string, error) {
	var buf bytes.Buffer
	if err := Timeline(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Page writes the built-in profile page.
func Page(w io.Writer, d PageData) error {
	return templates.ExecuteTemplate(w, "page", d)
}
