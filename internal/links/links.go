// Package links rewrites cloud-storage sharing links into URLs that serve
// the raw file bytes, so they can be used directly as an image source.
package links

import (
	"regexp"
	"strings"
)

// DirectContentBase is the host prefix that serves a Drive file by ID.
const DirectContentBase = "https://lh3.googleusercontent.com/d/"

var (
	fileIDPattern = regexp.MustCompile(`/file/d/([-\w]{25,})`)
	anyIDPattern  = regexp.MustCompile(`[-\w]{25,}`)
)

// Normalize returns the direct-content URL for a Drive/Docs sharing link
// and returns anything else unchanged.
//
//	https://drive.google.com/file/d/<ID>/view?usp=sharing -> https://lh3.googleusercontent.com/d/<ID>
//	https://drive.google.com/open?id=<ID>                 -> https://lh3.googleusercontent.com/d/<ID>
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	if id, ok := FileID(raw); ok {
		return DirectContentBase + id
	}
	return raw
}

// FileID extracts the opaque file identifier (25+ word characters or
// dashes) from a sharing link.
func FileID(raw string) (string, bool) {
	if m := fileIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if !isDriveHost(raw) {
		return "", false
	}
	if id := anyIDPattern.FindString(raw); id != "" {
		return id, true
	}
	return "", false
}

func isDriveHost(raw string) bool {
	return strings.Contains(raw, "drive.google.com") || strings.Contains(raw, "docs.google.com")
}
