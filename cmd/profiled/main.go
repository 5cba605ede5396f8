package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"profiled/internal/capture"
	"profiled/internal/config"
	appLog "profiled/internal/log"
	"profiled/internal/render"
	"profiled/internal/sheet"
	"profiled/internal/timeline"
	"profiled/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	out        string
	capture    bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.capture {
		conf.Capture.Enabled = true
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("profiled starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"sheet", sheet.RedactURL(conf.SheetURL),
		"refresh", conf.RefreshCron,
		"embargo_days", conf.EmbargoDays,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := timeline.NewStore(&timeline.Pipeline{
		SheetURL: conf.SheetURL,
		Fetcher:  sheet.NewFetcher(conf.CacheDir, conf.FetchTimeout()),
		Options:  timeline.NormalizeOptions{ImageFolder: conf.ImageFolder},
		Location: conf.Location(),
	})

	if flags.once {
		if err := runOnce(ctx, conf, store, flags.out); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, store); err != nil {
		appLog.Error("server stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("profiled exiting")
}

// runOnce runs the pipeline a single time and writes the rendered page.
func runOnce(ctx context.Context, conf *config.Config, store *timeline.Store, out string) error {
	snap := store.Refresh(ctx)

	tl := render.NewTimelineData(snap, time.Now(), timeline.ViewOptions{
		Location:    conf.Location(),
		EmbargoDays: conf.EmbargoDays,
		ImageFolder: conf.ImageFolder,
	})

	var buf bytes.Buffer
	if err := render.Page(&buf, render.NewPageData(conf.Profile, tl)); err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}

	if snap.State == timeline.StateFailed {
		return fmt.Errorf("timeline: %s", snap.Error)
	}
	return nil
}

// serve runs the HTTP server. Scheduled and initial refreshes start only
// once the listener is bound, so a capture never hits a closed port.
func serve(ctx context.Context, conf *config.Config, store *timeline.Store) error {
	if conf.Capture.Enabled {
		pageURL, err := capture.LocalURL(conf.Listen)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		opts := capture.Options{
			URL:        pageURL,
			OutputPath: conf.Capture.OutputPath,
			Width:      conf.Capture.Width,
			Height:     conf.Capture.Height,
		}
		if conf.BasicAuth != nil {
			opts.Username = conf.BasicAuth.Username
			opts.Password = conf.BasicAuth.Password
		}
		capturer := capture.NewCapturer(opts)
		store.OnUpdate(func(timeline.Snapshot) {
			capturer.Trigger(ctx)
		})
		defer capturer.Wait()
	}

	sched := cron.New(cron.WithLocation(conf.Location()))
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		store.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", conf.RefreshCron, err)
	}
	defer func() {
		<-sched.Stop().Done()
	}()

	return web.NewServer(conf, store).ListenAndServe(ctx, func(addr net.Addr) {
		appLog.Info("listener ready; starting scheduler", "addr", addr.String())
		sched.Start()
		// The page shows the loading state until the first run completes.
		go store.Refresh(ctx)
	})
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/profiled/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run the pipeline once, write the page and exit")
	flag.StringVar(&cfg.out, "out", "", "With -once: write the page here instead of stdout")
	flag.BoolVar(&cfg.capture, "capture", false, "Capture a PNG of the page after each refresh (overrides config)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
