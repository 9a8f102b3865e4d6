package webui

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/platform"
	"github.com/pixeltube/basecamp/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultAddr is the listen address of the configuration UI
	DefaultAddr = ":80"

	// DefaultRestartDelay gives the browser time to load the confirmation page
	DefaultRestartDelay = 2 * time.Second

	// SubmitLimit is the number of form submissions accepted per client and SubmitWindow
	SubmitLimit  = 5
	SubmitWindow = time.Minute
)

//go:embed templates/*.html
var templateFS embed.FS

// Status is the device state reported by /status and /ws/status.
type Status struct {
	Mode            string   `json:"mode"`
	Configured      bool     `json:"configured"`
	Hostname        string   `json:"hostname"`
	DisplayName     string   `json:"display_name"`
	AccessPointName string   `json:"access_point_name,omitempty"`
	Encrypted       bool     `json:"access_point_encrypted"`
	MAC             string   `json:"mac"`
	Addresses       []string `json:"addresses"`
	Degraded        bool     `json:"degraded"`
	LastEvent       string   `json:"last_event,omitempty"`
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, DefaultAddr if empty
	Addr string

	// Config is the configuration namespace the form reads and writes
	Config *store.Namespace

	// Restarter restarts the device after a successful submission
	Restarter platform.Restarter

	// RestartDelay defaults to DefaultRestartDelay
	RestartDelay time.Duration

	// Status reports the current device state
	Status func() Status

	// Label is the product label of the page title, "Pixel Tube" if empty
	Label string

	// PortalHost is the host captive portal probes are redirected to
	PortalHost string
}

// Server is the configuration web UI.
type Server struct {
	opts      Options
	templates *template.Template
	router    chi.Router
	hub       *hub

	restartOnce sync.Once
	restartTmr  *time.Timer
}

// New creates a configuration UI server
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Restarter == nil || opts.Status == nil {
		return nil, errors.New("webui needs a config store, restarter and status source")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{opts: opts, templates: tmpl, hub: newHub()}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Notify pushes the current status to every connected status stream.
func (s *Server) Notify() {
	s.hub.broadcast(s.opts.Status())
}

// Run serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Starting configuration UI", zap.String("addr", s.opts.Addr))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("configuration UI failed: %w", err)
	case <-ctx.Done():
	}

	logging.Info("Shutting down configuration UI")
	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Configuration UI shutdown timeout, forcing close", zap.Error(err))
		return srv.Close()
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleForm)
	r.With(submitRateLimit()).Post("/save", s.handleSave)
	r.Get("/status", s.handleStatus)
	r.Get("/ws/status", s.handleStatusStream)

	// Operating system connectivity checks
	for _, path := range captiveProbePaths {
		r.Get(path, s.handleProbe)
	}
	r.NotFound(s.handleProbe)

	return r
}

// scheduleRestart arms the delayed restart once; later submissions reuse it.
func (s *Server) scheduleRestart() {
	s.restartOnce.Do(func() {
		logging.Info("Configuration saved, restarting",
			zap.Duration("delay", s.opts.RestartDelay),
		)
		s.restartTmr = platform.RestartAfter(s.opts.Restarter, s.opts.RestartDelay, "configuration saved")
	})
}
