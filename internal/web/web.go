package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"profiled/internal/config"
	"profiled/internal/feed"
	appLog "profiled/internal/log"
	"profiled/internal/render"
	"profiled/internal/timeline"
)

// Server serves the profile page, the timeline fragment and a small API.
type Server struct {
	cfg   *config.Config
	store *timeline.Store
	mux   *http.ServeMux
	now   func() time.Time

	// customPage is the profile.template file, read once at startup.
	customPage []byte
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server. A configured profile template that cannot
// be read is logged and the built-in page is used instead.
func NewServer(cfg *config.Config, store *timeline.Store) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		mux:   http.NewServeMux(),
		now:   time.Now,
	}
	if cfg.Profile.Template != "" {
		data, err := os.ReadFile(cfg.Profile.Template)
		if err != nil {
			appLog.Error("profile template unreadable; using built-in page", err, "path", cfg.Profile.Template)
		} else {
			s.customPage = data
		}
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe binds cfg.Listen, calls ready with the bound address once
// connections are accepted, and serves until ctx is canceled, then shuts
// down gracefully. ready may be nil.
func (s *Server) ListenAndServe(ctx context.Context, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="profiled", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("GET /timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /timeline.ics", s.handleICS)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	s.mux.Handle("GET /static/", s.staticFileServer())

	folder := "/" + s.cfg.ImageFolder + "/"
	s.mux.Handle("GET "+folder, http.StripPrefix(folder, http.FileServer(http.Dir(s.cfg.ImagesDir))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) viewOptions() timeline.ViewOptions {
	return timeline.ViewOptions{
		Location:    s.cfg.Location(),
		EmbargoDays: s.cfg.EmbargoDays,
		ImageFolder: s.cfg.ImageFolder,
	}
}

func (s *Server) timelineData() render.TimelineData {
	return render.NewTimelineData(s.store.Snapshot(), s.now(), s.viewOptions())
}

// handlePage renders the whole profile page. Rendering goes to a buffer
// first so a template error never leaves a half-written page.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	tl := s.timelineData()

	var buf bytes.Buffer
	var err error
	if s.customPage != nil {
		err = render.CustomPage(&buf, s.customPage, tl)
	} else {
		err = render.Page(&buf, render.NewPageData(s.cfg.Profile, tl))
	}
	if err != nil {
		appLog.Error("page render failed", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	writeHTML(w, buf.Bytes())
}

// handleTimeline renders the timeline container contents only.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := render.Timeline(&buf, s.timelineData()); err != nil {
		appLog.Error("timeline render failed", err)
		http.Error(w, "failed to render timeline", http.StatusInternalServerError)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap.State != timeline.StateReady {
		writeError(w, http.StatusServiceUnavailable, "timeline not available: "+string(snap.State))
		return
	}

	var buf bytes.Buffer
	n, err := feed.ICS(&buf, snap.Events, s.now(), feed.Options{
		Name:    s.cfg.Profile.Name,
		Domain:  r.Host,
		View:    s.viewOptions(),
		BaseURL: "http://" + r.Host,
	})
	if err != nil {
		appLog.Error("ics render failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render calendar")
		return
	}
	appLog.Debug("ics feed served", "events", n)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// eventDTO is the JSON view of an event; Seat is omitted while embargoed.
type eventDTO struct {
	Row       int    `json:"row"`
	Date      string `json:"date"`
	Artist    string `json:"artist"`
	EventName string `json:"event_name"`
	Location  string `json:"location,omitempty"`
	Seat      string `json:"seat,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

type eventsResponse struct {
	State     timeline.State `json:"state"`
	Error     string         `json:"error,omitempty"`
	Events    []eventDTO     `json:"events"`
	UpdatedAt time.Time      `json:"updated_at"`
	FromCache bool           `json:"from_cache"`
	Source    string         `json:"source,omitempty"`
}

func (s *Server) eventsResponse(snap timeline.Snapshot) eventsResponse {
	views := timeline.BuildViews(snap.Events, s.now(), s.viewOptions())
	dtos := make([]eventDTO, 0, len(views))
	for _, v := range views {
		d := eventDTO{Row: v.Row, Date: v.Date, Artist: v.Artist, EventName: v.EventName}
		if v.ShowLocation {
			d.Location = v.Location
		}
		if v.ShowSeat {
			d.Seat = v.Seat
		}
		if v.ShowImage {
			d.ImageURL = v.ImageURL
		}
		dtos = append(dtos, d)
	}
	return eventsResponse{
		State:     snap.State,
		Error:     snap.Error,
		Events:    dtos,
		UpdatedAt: snap.UpdatedAt,
		FromCache: snap.FromCache,
		Source:    snap.Source,
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eventsResponse(s.store.Snapshot()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Refresh(r.Context())
	status := http.StatusOK
	if snap.State == timeline.StateFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, s.eventsResponse(snap))
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.Capture.OutputPath)
}

func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		})
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
