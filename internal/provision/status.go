package provision

import (
	"github.com/pixeltube/basecamp/internal/ui"
	"github.com/pixeltube/basecamp/internal/webui"
	"github.com/pixeltube/basecamp/internal/wifi"
)

// IsSetupModeWifiEncrypted reports whether the setup access point is
// protected by a password.
func (c *Controller) IsSetupModeWifiEncrypted() bool {
	return c.encrypt && wifi.ValidateSecret(c.config().APSecret) == nil
}

// SetupModeWifiName returns the SSID of the setup access point
func (c *Controller) SetupModeWifiName() string {
	return c.selector.AccessPointName()
}

// SetupModeWifiSecret returns the access point secret in cleartext. It is
// meant for the local console only.
func (c *Controller) SetupModeWifiSecret() string {
	return c.config().APSecret
}

// Mode returns the network mode selected by Start, wifi.Unconfigured before
func (c *Controller) Mode() wifi.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Hostname returns the hostname derived from the configuration
func (c *Controller) Hostname() string {
	c.mu.Lock()
	hostname := c.hostname
	c.mu.Unlock()
	if hostname == "" {
		hostname = c.config().Hostname(c.settings.HostnamePrefix)
	}
	return hostname
}

// Degraded reports whether Start had to recover from a fault, such as a
// corrupt configuration store. The device is running either way.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.degraded) > 0
}

// DegradedReasons lists the faults recovered from, in order
func (c *Controller) DegradedReasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.degraded...)
}

// Status returns the device state served by the configuration UI
func (c *Controller) Status() webui.Status {
	cfg := c.config()
	mode := c.Mode()

	c.mu.Lock()
	lastEvent := c.lastEvent
	degraded := len(c.degraded) > 0
	c.mu.Unlock()

	st := webui.Status{
		Mode:        mode.String(),
		Configured:  cfg.IsConfigured,
		Hostname:    c.Hostname(),
		DisplayName: cfg.DisplayName(c.settings.DeviceLabel),
		MAC:         wifi.FormatMAC(c.opts.Radio.HardwareAddr(), ":"),
		Addresses:   joinAddrs(c.opts.Radio.Addrs()),
		Degraded:    degraded,
		LastEvent:   lastEvent,
	}
	if mode != wifi.Client {
		st.AccessPointName = c.SetupModeWifiName()
		st.Encrypted = c.IsSetupModeWifiEncrypted()
	}
	return st
}

// Panel builds the system info panel: identity, addresses and the access
// point password. It contains the secret in cleartext and must only be
// written to a local console.
func (c *Controller) Panel() *ui.Panel {
	cfg := c.config()
	mode := c.Mode()

	subtitle := mode.String() + " mode"
	if mode == wifi.Unconfigured {
		subtitle = "stored configuration"
	}

	hw := c.opts.Radio.HardwareAddr()
	current := hw
	if r, ok := c.opts.Radio.(currentAddr); ok {
		if mac := r.CurrentHardwareAddr(); len(mac) > 0 {
			current = mac
		}
	}

	p := ui.NewPanel(cfg.DisplayName(c.settings.DeviceLabel), subtitle)
	p.Add("Hostname", c.Hostname())
	p.Add("MAC", wifi.FormatMAC(current, ":"))
	p.Add("Hardware MAC", wifi.FormatMAC(hw, ""))
	p.Add("Addresses", orNone(joinAddrs(c.opts.Radio.Addrs())))
	if cfg.IsConfigured {
		p.Add("Network", cfg.SSID)
	}
	p.Add("Access point", c.SetupModeWifiName())
	if c.IsSetupModeWifiEncrypted() {
		p.AddSecret("AP password", cfg.APSecret)
	} else {
		p.Add("AP password", "none, access point is open")
	}

	for _, reason := range c.DegradedReasons() {
		p.Note(reason)
	}
	return p
}

// SystemInfo returns the system info panel as plain text
func (c *Controller) SystemInfo() string {
	return c.Panel().Plain()
}
