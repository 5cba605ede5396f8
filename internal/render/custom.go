package render

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"profiled/internal/links"
	"profiled/internal/timeline"
)

const (
	avatarClass = "bento-avatar"
	containerID = "timeline-container"
)

// ErrNoContainer is returned when a custom page lacks #timeline-container.
var ErrNoContainer = errors.New("render: page has no #timeline-container element")

// CustomPage renders a user-supplied HTML page: every img.bento-avatar gets
// its src normalized and #timeline-container is replaced with the timeline.
func CustomPage(w io.Writer, src []byte, tl TimelineData) error {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return err
	}

	fragment, err := TimelineHTML(tl)
	if err != nil {
		return err
	}

	RewriteAvatars(doc)

	container := findByID(doc, containerID)
	if container == nil {
		return ErrNoContainer
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return err
	}
	for c := container.FirstChild; c != nil; c = container.FirstChild {
		container.RemoveChild(c)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	setAttr(container, "data-state", string(tl.State))
	if tl.State != timeline.StateLoading {
		setAttr(container, "data-ready", "true")
	}

	return html.Render(w, doc)
}

// RewriteAvatars normalizes the src of every img.bento-avatar under n and
// reports how many were changed.
func RewriteAvatars(n *html.Node) int {
	changed := 0
	walk(n, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Img || !hasClass(n, avatarClass) {
			return false
		}
		src := getAttr(n, "src")
		if dst := links.Normalize(src); dst != src {
			setAttr(n, "src", dst)
			changed++
		}
		return false
	})
	return changed
}

func findByID(n *html.Node, id string) *html.Node {
	var found *html.Node
	walk(n, func(n *html.Node) bool {
		if n.Type == html.ElementNode && getAttr(n, "id") == id {
			found = n
			return true
		}
		return false
	})
	return found
}

// walk visits n depth-first until fn returns true.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if fn(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if walk(c, fn) {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(getAttr(n, "class")), class)
}
