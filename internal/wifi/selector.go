package wifi

import (
	"net"

	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"go.uber.org/zap"
)

// DefaultAccessPointPrefix is the SSID prefix of the setup access point
const DefaultAccessPointPrefix = "PixelTube"

// Mode is the network role selected for this boot
type Mode int

const (
	// Unconfigured is the mode before Begin has run
	Unconfigured Mode = iota
	// AccessPoint hosts the setup network
	AccessPoint
	// Client joins the stored network
	Client
)

// String returns a human-readable mode name
func (m Mode) String() string {
	switch m {
	case AccessPoint:
		return "access-point"
	case Client:
		return "client"
	default:
		return "unconfigured"
	}
}

// Radio is the Wi-Fi driver used by the selector. Calls only initiate the
// requested state; results arrive later as events.
type Radio interface {
	// RequestStaticLease asks for a fixed address on the next association
	RequestStaticLease(lease netconfig.Lease) error
	// Connect starts associating with a network
	Connect(ssid, secret string) error
	// SetHostname sets the hostname sent with DHCP requests
	SetHostname(name string) error
	// StartAccessPoint opens an access point; an empty secret opens it unencrypted
	StartAccessPoint(ssid, secret string) error
	// HardwareAddr returns the factory MAC address of the radio
	HardwareAddr() net.HardwareAddr
}

// Selector picks access point or client mode from the stored configuration
// and starts the radio accordingly.
type Selector struct {
	radio  Radio
	prefix string

	// encrypt starts the access point with the stored secret
	encrypt bool

	mode   Mode
	apName string
}

// NewSelector creates a selector. prefix is the access point SSID prefix;
// empty selects DefaultAccessPointPrefix.
func NewSelector(radio Radio, prefix string, encrypt bool) *Selector {
	return &Selector{radio: radio, prefix: prefix, encrypt: encrypt}
}

// Begin selects the mode for cfg and initiates it. It returns as soon as the
// attempt is started; association failures surface later as link-lost events.
func (s *Selector) Begin(cfg *netconfig.NetworkConfig, hostname string) Mode {
	s.apName = AccessPointName(s.prefix, s.radio.HardwareAddr())

	if cfg.IsConfigured {
		s.beginClient(cfg, hostname)
	} else {
		s.beginAccessPoint(cfg)
	}
	return s.mode
}

func (s *Selector) beginClient(cfg *netconfig.NetworkConfig, hostname string) {
	s.mode = Client
	logging.Info("Wifi is configured, joining network",
		zap.String("ssid", cfg.SSID),
		zap.String("hostname", hostname),
	)

	if cfg.LastLease != nil && cfg.LastLease.Valid() {
		logging.Info("Requesting previous lease",
			zap.String("address", cfg.LastLease.Address.String()),
			zap.String("gateway", cfg.LastLease.Gateway.String()),
			zap.String("mask", cfg.LastLease.MaskString()),
		)
		if err := s.radio.RequestStaticLease(*cfg.LastLease); err != nil {
			logging.Warn("Static lease request rejected, falling back to DHCP", zap.Error(err))
		}
	}

	// The hostname is set first so the DHCP request carries it
	if err := s.radio.SetHostname(hostname); err != nil {
		logging.Warn("Failed to set hostname", zap.String("hostname", hostname), zap.Error(err))
	}
	if err := s.radio.Connect(cfg.SSID, cfg.Secret); err != nil {
		logging.Error("Failed to start association", zap.String("ssid", cfg.SSID), zap.Error(err))
	}
}

func (s *Selector) beginAccessPoint(cfg *netconfig.NetworkConfig) {
	s.mode = AccessPoint
	logging.Info("Wifi is not configured, starting access point", zap.String("ssid", s.apName))

	secret := ""
	if s.encrypt {
		if err := ValidateSecret(cfg.APSecret); err == nil {
			secret = cfg.APSecret
		} else {
			logging.Warn("Stored access point secret unusable, starting open access point", zap.Error(err))
		}
	}
	logging.Debug("Access point secret", zap.Bool("encrypted", secret != ""), zap.String("secret", secret))

	if err := s.radio.StartAccessPoint(s.apName, secret); err != nil {
		logging.Error("Failed to start access point", zap.String("ssid", s.apName), zap.Error(err))
	}
}

// AccessPointName returns the SSID of the setup access point
func (s *Selector) AccessPointName() string {
	if s.apName == "" {
		s.apName = AccessPointName(s.prefix, s.radio.HardwareAddr())
	}
	return s.apName
}
