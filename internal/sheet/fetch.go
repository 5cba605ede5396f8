package sheet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "profiled/internal/log"
)

const (
	metaFileName = "meta.json"
	bodyFileName = "body.xlsx"

	// maxPayloadBytes caps the workbook download. A profile sheet is a few KB.
	maxPayloadBytes = 32 << 20
)

// ErrNotModifiedWithoutCache is returned for a 304 when no cached body exists.
var ErrNotModifiedWithoutCache = errors.New("sheet: 304 Not Modified but no cached body available")

// StatusError reports a non-2xx response from the spreadsheet host.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "network response was not ok: " + e.Status
}

// Payload is the outcome of one fetch.
type Payload struct {
	URL       string
	Body      []byte
	FromCache bool // true if the host answered 304 and the cached body was reused
}

// cacheEntry holds HTTP validators for the cached workbook.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads the exported workbook. It sends conditional requests
// (ETag / Last-Modified) backed by a disk cache, but never falls back to the
// cache on errors: a failed request is a failed run.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher. An empty cacheDir disables the disk cache.
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// Fetch downloads the workbook at exportURL.
func (f *Fetcher) Fetch(ctx context.Context, exportURL string) (Payload, error) {
	if exportURL == "" {
		return Payload{}, errors.New("sheet: export URL is empty")
	}

	cachePath := f.cachePathForURL(exportURL)
	var (
		meta       cacheEntry
		cachedBody []byte
	)
	if cachePath != "" {
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("sheet cache dir unavailable", err, "path", cachePath)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
			cachedBody, _ = os.ReadFile(filepath.Join(cachePath, bodyFileName))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return Payload{}, err
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("sheet fetch start", "url", RedactURL(exportURL))

	resp, err := f.client.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("sheet: fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Payload{}, ErrNotModifiedWithoutCache
		}
		appLog.Info("sheet not modified; using cache", "url", RedactURL(exportURL))
		return Payload{URL: exportURL, Body: cachedBody, FromCache: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
		if err != nil {
			return Payload{}, fmt.Errorf("sheet: read body: %w", err)
		}
		if len(body) > maxPayloadBytes {
			return Payload{}, fmt.Errorf("sheet: payload exceeds %d bytes", maxPayloadBytes)
		}

		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          exportURL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("sheet cache save failed", err, "url", RedactURL(exportURL))
			}
		}

		appLog.Info("sheet fetch success", "url", RedactURL(exportURL), "status", resp.StatusCode, "bytes", len(body))
		return Payload{URL: exportURL, Body: body}, nil

	default:
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Payload{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

func (f *Fetcher) cachePathForURL(u string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, metaFileName))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, bodyFileName), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, metaFileName), data, 0o600)
}

// RedactURL keeps scheme and host only; published sheet URLs act as secrets.
func RedactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "sheet://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
