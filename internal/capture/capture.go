package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "profiled/internal/log"
)

// Default viewport for the page snapshot.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 2000
	DefaultTimeout = 30 * time.Second
)

// Options defines one headless-browser screenshot.
type Options struct {
	// URL of the profile page, e.g. "http://127.0.0.1:8080/".
	URL        string
	OutputPath string

	// Width and Height of the viewport; zero means the defaults.
	Width  int
	Height int

	Timeout time.Duration

	// Username and Password, when both set, are sent as HTTP Basic Auth on
	// every request the page makes.
	Username string
	Password string
}

// LocalURL returns the URL of the page served on a listen address.
// Wildcard or empty hosts (":8080", "0.0.0.0:8080", "[::]:8080") are
// reached through loopback.
func LocalURL(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("capture: listen address %q: %w", listen, err)
	}
	if port == "" {
		return "", fmt.Errorf("capture: listen address %q has no port", listen)
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/", nil
}

func (o Options) authHeader() string {
	if o.Username == "" || o.Password == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(o.Username+":"+o.Password))
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// PagePNG opens opts.URL in headless Chromium, waits until the timeline
// container reports data-ready="true" (set once the timeline is no longer
// loading), lets the fade-in animations settle and writes a full-page PNG.
func PagePNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	var tasks chromedp.Tasks
	if auth := opts.authHeader(); auth != "" {
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": auth}),
		)
	}
	tasks = append(tasks,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`#timeline-container[data-ready="true"]`, chromedp.ByQuery),
		// Scroll through so every item's observer fires, then let the 0.6s transition finish.
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(800 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	)
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	tmp := opts.OutputPath + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return os.Rename(tmp, opts.OutputPath)
}

// Func matches PagePNG; tests substitute it.
type Func func(ctx context.Context, opts Options) error

// Capturer takes snapshots in the background, one at a time. A trigger
// arriving while a capture runs is coalesced into one follow-up capture so
// the preview always ends up showing the latest state.
type Capturer struct {
	opts    Options
	capture Func

	mu      sync.Mutex
	running bool
	pending bool
	wg      sync.WaitGroup
}

// NewCapturer returns a Capturer using PagePNG.
func NewCapturer(opts Options) *Capturer {
	return &Capturer{opts: opts, capture: PagePNG}
}

// Trigger starts a capture, or schedules one to follow the capture already
// running. It reports whether a new capture goroutine was started.
func (c *Capturer) Trigger(ctx context.Context) bool {
	c.mu.Lock()
	if c.running {
		c.pending = true
		c.mu.Unlock()
		appLog.Debug("capture already running; queued follow-up")
		return false
	}
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			c.runOnce(ctx)

			c.mu.Lock()
			if !c.pending || ctx.Err() != nil {
				c.running = false
				c.pending = false
				c.mu.Unlock()
				return
			}
			c.pending = false
			c.mu.Unlock()
		}
	}()
	return true
}

func (c *Capturer) runOnce(ctx context.Context) {
	start := time.Now()
	if err := c.capture(ctx, c.opts); err != nil {
		appLog.Error("page capture failed", err, "url", c.opts.URL)
		return
	}
	appLog.Info("page captured", "path", c.opts.OutputPath, "took", time.Since(start).Round(time.Millisecond))
}

// Wait blocks until the running capture, including a queued follow-up, has
// finished.
func (c *Capturer) Wait() {
	c.wg.Wait()
}
