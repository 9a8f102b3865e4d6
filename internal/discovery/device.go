package discovery

import (
	"fmt"
	"time"
)

// Device is a pixel tube found on the network.
type Device struct {
	// Number is the pixel tube number, 0 for an unconfigured unit
	Number int

	// Instance is the mDNS service instance name (e.g. "Pixel Tube 7")
	Instance string

	// Hostname is the mDNS hostname (e.g. "pixel-tube-7.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 if the unit announced no IPv4 address
	IP string

	// Port is the HTTP port of the configuration UI (typically 80)
	Port int

	// MAC is the hardware address from the TXT record
	MAC string

	// Metadata contains the TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	if d.Number == 0 {
		return fmt.Sprintf("Unconfigured pixel tube (%s) at %s:%d", d.Hostname, d.IP, d.Port)
	}
	return fmt.Sprintf("Pixel tube %d (%s) at %s:%d", d.Number, d.Hostname, d.IP, d.Port)
}

// BaseURL returns the HTTP base URL of the configuration UI
func (d *Device) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.IP, d.Port)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
