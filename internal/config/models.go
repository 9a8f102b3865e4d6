package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// EncryptionPolicy selects whether the setup access point uses its secret.
type EncryptionPolicy string

const (
	// EncryptionNone opens the setup access point without a secret
	EncryptionNone EncryptionPolicy = "none"
	// EncryptionSecured protects the setup access point with the stored secret
	EncryptionSecured EncryptionPolicy = "secured"
)

// UIPolicy selects when the configuration UI is served.
type UIPolicy string

const (
	// UIAlways serves the configuration UI in every mode
	UIAlways UIPolicy = "always"
	// UIAccessPoint serves it only while the setup access point is up
	UIAccessPoint UIPolicy = "access_point"
)

// Settings is the daemon settings file.
type Settings struct {
	Version int `yaml:"version"`

	// Interface is the managed wireless interface
	Interface string `yaml:"interface"`

	// ConfigDir holds the network configuration store. A factory reset
	// erases everything below it.
	ConfigDir string `yaml:"config_dir"`

	// StateDir holds the boot health store and the reset marker
	StateDir string `yaml:"state_dir"`

	// ResetMarker records why the device restarted last
	ResetMarker string `yaml:"reset_marker"`

	// WatchdogStatus is read when no marker exists; non-zero means a watchdog reset
	WatchdogStatus string `yaml:"watchdog_status"`

	SetupEncryption EncryptionPolicy `yaml:"setup_encryption"`
	ConfigUI        UIPolicy         `yaml:"config_ui"`

	HTTPAddr string `yaml:"http_addr"`
	DNSAddr  string `yaml:"dns_addr"`

	APNamePrefix   string `yaml:"ap_name_prefix"`
	HostnamePrefix string `yaml:"hostname_prefix"`
	DeviceLabel    string `yaml:"device_label"`

	PollInterval time.Duration `yaml:"poll_interval"`
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MDNS announces the configuration UI in client mode
	MDNS bool `yaml:"mdns"`
}

// NewSettings returns the default settings.
func NewSettings() *Settings {
	return &Settings{
		Version:         1,
		Interface:       "wlan0",
		ConfigDir:       "/var/lib/basecamp/config",
		StateDir:        "/var/lib/basecamp/state",
		ResetMarker:     "/var/lib/basecamp/state/reset-cause",
		WatchdogStatus:  "/sys/class/watchdog/watchdog0/bootstatus",
		SetupEncryption: EncryptionSecured,
		ConfigUI:        UIAccessPoint,
		HTTPAddr:        ":80",
		DNSAddr:         ":53",
		APNamePrefix:    "PixelTube",
		HostnamePrefix:  "pixel-tube",
		DeviceLabel:     "Pixel Tube",
		PollInterval:    2 * time.Second,
		RestartDelay:    2 * time.Second,
		MDNS:            true,
	}
}

// ConfigStorePath returns the file of the network configuration store
func (s *Settings) ConfigStorePath() string {
	return filepath.Join(s.ConfigDir, "network.yaml")
}

// HealthStorePath returns the file of the boot health store
func (s *Settings) HealthStorePath() string {
	return filepath.Join(s.StateDir, "health.yaml")
}

// Validate checks enum values and the separation of the store directories.
func (s *Settings) Validate() error {
	switch s.SetupEncryption {
	case EncryptionNone, EncryptionSecured:
	default:
		return fmt.Errorf("invalid setup_encryption %q (expected none or secured)", s.SetupEncryption)
	}
	switch s.ConfigUI {
	case UIAlways, UIAccessPoint:
	default:
		return fmt.Errorf("invalid config_ui %q (expected always or access_point)", s.ConfigUI)
	}
	if s.Interface == "" {
		return fmt.Errorf("interface must be set")
	}
	if s.ConfigDir == "" || s.StateDir == "" {
		return fmt.Errorf("config_dir and state_dir must be set")
	}
	if within(s.StateDir, s.ConfigDir) || within(s.ResetMarker, s.ConfigDir) {
		return fmt.Errorf("state_dir and reset_marker must be outside config_dir %s, which a factory reset erases", s.ConfigDir)
	}
	if s.PollInterval <= 0 || s.RestartDelay < 0 {
		return fmt.Errorf("poll_interval must be positive and restart_delay not negative")
	}
	return nil
}

// within reports whether path is dir or below it
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
