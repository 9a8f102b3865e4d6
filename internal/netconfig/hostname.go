package netconfig

import (
	"fmt"
	"strings"
)

// DefaultHostnamePrefix is used when the daemon settings do not name one
const DefaultHostnamePrefix = "pixel-tube"

// Hostname returns the DHCP hostname for the device: "<prefix>-<number>", or
// "<prefix>-unconfigured" while no pixel tube number is stored.
func (c *NetworkConfig) Hostname(prefix string) string {
	prefix = cleanHostnameLabel(prefix)
	if prefix == "" {
		prefix = DefaultHostnamePrefix
	}
	if c.PixelTubeNumber == 0 {
		return prefix + "-unconfigured"
	}
	return fmt.Sprintf("%s-%d", prefix, c.PixelTubeNumber)
}

// DisplayName returns the name shown in the configuration UI title
func (c *NetworkConfig) DisplayName(label string) string {
	if label == "" {
		label = "Pixel Tube"
	}
	if c.PixelTubeNumber == 0 {
		return "Unconfigured " + label
	}
	return fmt.Sprintf("%s %d", label, c.PixelTubeNumber)
}

// cleanHostnameLabel lowercases s and drops every character that is not
// allowed in a DNS label.
func cleanHostnameLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
