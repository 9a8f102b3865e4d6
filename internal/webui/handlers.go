package webui

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"go.uber.org/zap"
)

// captiveProbePaths are the connectivity check URLs of common operating
// systems. Answering them with a redirect makes the client open the portal.
var captiveProbePaths = []string{
	"/generate_204",
	"/gen_204",
	"/hotspot-detect.html",
	"/library/test/success.html",
	"/connecttest.txt",
	"/ncsi.txt",
	"/redirect",
}

type limits struct {
	MinPixelTubeNumber    int
	MaxPixelTubeNumber    int
	MinArtNetUniverse     int
	MaxArtNetUniverse     int
	MinArtNetStartAddress int
	MaxArtNetStartAddress int
}

var formLimits = limits{
	MinPixelTubeNumber:    netconfig.MinPixelTubeNumber,
	MaxPixelTubeNumber:    netconfig.MaxPixelTubeNumber,
	MinArtNetUniverse:     netconfig.MinArtNetUniverse,
	MaxArtNetUniverse:     netconfig.MaxArtNetUniverse,
	MinArtNetStartAddress: netconfig.MinArtNetStartAddress,
	MaxArtNetStartAddress: netconfig.MaxArtNetStartAddress,
}

type formData struct {
	Title              string
	SSID               string
	PixelTubeNumber    int
	ArtNetUniverse     int
	ArtNetStartAddress int
	MAC                string
	Errors             []string
	Limits             limits
}

type savedData struct {
	Title string
	SSID  string
	Delay string
}

func (s *Server) loadConfig() *netconfig.NetworkConfig {
	cfg, err := netconfig.Load(s.opts.Config)
	if err != nil {
		logging.Warn("Failed to load configuration for the form", zap.Error(err))
		return &netconfig.NetworkConfig{}
	}
	return cfg
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	cfg := s.loadConfig()
	s.renderForm(w, http.StatusOK, formData{
		Title:              cfg.DisplayName(s.opts.Label),
		SSID:               cfg.SSID,
		PixelTubeNumber:    cfg.PixelTubeNumber,
		ArtNetUniverse:     cfg.ArtNetUniverse,
		ArtNetStartAddress: cfg.ArtNetStartAddress,
	})
}

func (s *Server) renderForm(w http.ResponseWriter, status int, data formData) {
	data.MAC = s.opts.Status().MAC
	data.Limits = formLimits

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, "form.html", data); err != nil {
		logging.Error("Failed to render configuration form", zap.Error(err))
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	sub, err := netconfig.ParseSubmission(r.PostForm)
	if err != nil {
		if !netconfig.IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cfg := s.loadConfig()
		s.renderForm(w, http.StatusBadRequest, formData{
			Title:  cfg.DisplayName(s.opts.Label),
			SSID:   r.PostForm.Get(netconfig.KeyWifiEssid),
			Errors: validationMessages(err),
		})
		return
	}

	if err := s.store(sub); err != nil {
		logging.Error("Failed to store configuration", zap.Error(err))
		http.Error(w, "Failed to store configuration", http.StatusInternalServerError)
		return
	}

	logging.Info("Configuration stored",
		zap.String("ssid", sub.SSID),
		zap.Int("pixel_tube_number", sub.PixelTubeNumber),
		zap.Int("art_net_universe", sub.ArtNetUniverse),
		zap.Int("art_net_start_address", sub.ArtNetStartAddress),
	)

	cfg := &netconfig.NetworkConfig{PixelTubeNumber: sub.PixelTubeNumber}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "saved.html", savedData{
		Title: cfg.DisplayName(s.opts.Label),
		SSID:  sub.SSID,
		Delay: s.opts.RestartDelay.String(),
	}); err != nil {
		logging.Error("Failed to render confirmation", zap.Error(err))
	}

	s.Notify()
	s.scheduleRestart()
}

// store writes the submission in one config session. Keys the form does not
// carry, such as the stored lease and access point secret, are kept.
func (s *Server) store(sub netconfig.Submission) error {
	session, err := s.opts.Config.Begin(false)
	if err != nil {
		return err
	}
	if err := netconfig.WriteSubmission(session, sub); err != nil {
		_ = session.End()
		return err
	}
	return session.End()
}

// validationMessages returns one message per field error
func validationMessages(err error) []string {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		var ve *netconfig.ValidationError
		if errors.As(e, &ve) {
			messages = append(messages, ve.Field+": "+ve.Message)
		} else {
			messages = append(messages, e.Error())
		}
	}
	return messages
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.opts.Status()); err != nil {
		logging.Debug("Failed to write status", zap.Error(err))
	}
}

// handleProbe redirects captive portal checks and unknown paths to the form.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.opts.PortalHost == "" {
		http.NotFound(w, r)
		return
	}
	logging.Debug("Redirecting to captive portal",
		zap.String("host", r.Host),
		zap.String("path", r.URL.Path),
	)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, "http://"+s.opts.PortalHost+"/", http.StatusFound)
}
