package netconfig

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pixeltube/basecamp/internal/store"
)

// Storage keys in the configuration namespace. The names and the "True"/"False"
// encoding match the existing on-flash format.
const (
	KeyWifiConfigured     = "WifiConfigured"
	KeyWifiEssid          = "WifiEssid"
	KeyWifiPassword       = "WifiPassword"
	KeyAccessPointSecret  = "APSecret"
	KeyIPAddress          = "ipaddress"
	KeyGatewayIP          = "gatewayIp"
	KeySubnetMask         = "subnetMask"
	KeyPixelTubeNumber    = "pixelTubeNumber"
	KeyArtNetUniverse     = "artNetUniverse"
	KeyArtNetStartAddress = "artNetStartAddress"
)

const (
	storedTrue  = "True"
	storedFalse = "False"
)

// Lease is an address assignment previously received by the device.
type Lease struct {
	Address net.IP
	Gateway net.IP
	Mask    net.IPMask
}

// ParseLease builds a lease from its stored string form. It returns false
// unless all three fields parse as IPv4 addresses.
func ParseLease(address, gateway, mask string) (Lease, bool) {
	ip := net.ParseIP(address).To4()
	gw := net.ParseIP(gateway).To4()
	m := net.ParseIP(mask).To4()
	if ip == nil || gw == nil || m == nil {
		return Lease{}, false
	}
	return Lease{Address: ip, Gateway: gw, Mask: net.IPMask(m)}, true
}

// Valid reports whether every field of the lease is set
func (l Lease) Valid() bool {
	return l.Address.To4() != nil && l.Gateway.To4() != nil && len(l.Mask) == net.IPv4len
}

// PrefixLength returns the CIDR prefix length of the mask
func (l Lease) PrefixLength() int {
	ones, _ := l.Mask.Size()
	return ones
}

// MaskString returns the mask in dotted-decimal form
func (l Lease) MaskString() string {
	if len(l.Mask) != net.IPv4len {
		return ""
	}
	return net.IP(l.Mask).String()
}

// String returns a human-readable representation of the lease
func (l Lease) String() string {
	return fmt.Sprintf("%s/%d via %s", l.Address, l.PrefixLength(), l.Gateway)
}

// NetworkConfig is the typed view of the configuration namespace.
type NetworkConfig struct {
	// IsConfigured is true once the configuration UI has stored credentials
	IsConfigured bool

	SSID   string
	Secret string

	// APSecret is the setup access point passphrase. It is generated once
	// and kept across network config resets.
	APSecret string

	// LastLease is nil when no complete, well-formed lease is stored
	LastLease *Lease

	// Device identifiers. Zero means unset.
	PixelTubeNumber    int
	ArtNetUniverse     int
	ArtNetStartAddress int
}

// Read builds a NetworkConfig from an open session. String booleans and
// numbers are converted here; nothing downstream sees the stored encoding.
func Read(s *store.Session) *NetworkConfig {
	cfg := &NetworkConfig{
		IsConfigured:       s.String(KeyWifiConfigured, storedFalse) == storedTrue,
		SSID:               s.String(KeyWifiEssid, ""),
		Secret:             s.String(KeyWifiPassword, ""),
		APSecret:           s.String(KeyAccessPointSecret, ""),
		PixelTubeNumber:    atoi(s.String(KeyPixelTubeNumber, "")),
		ArtNetUniverse:     atoi(s.String(KeyArtNetUniverse, "")),
		ArtNetStartAddress: atoi(s.String(KeyArtNetStartAddress, "")),
	}

	if lease, ok := ParseLease(
		s.String(KeyIPAddress, ""),
		s.String(KeyGatewayIP, ""),
		s.String(KeySubnetMask, ""),
	); ok {
		cfg.LastLease = &lease
	}

	return cfg
}

// Load opens a read-only session on ns and reads the configuration.
func Load(ns *store.Namespace) (*NetworkConfig, error) {
	s, err := ns.Begin(true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.End() }()
	return Read(s), nil
}

// SetConfigured stores the configured flag in its string form
func SetConfigured(s *store.Session, configured bool) error {
	return s.PutString(KeyWifiConfigured, formatBool(configured))
}

// WriteLease stores a lease, overwriting any previous value
func WriteLease(s *store.Session, lease Lease) error {
	if err := s.PutString(KeyIPAddress, lease.Address.String()); err != nil {
		return err
	}
	if err := s.PutString(KeyGatewayIP, lease.Gateway.String()); err != nil {
		return err
	}
	return s.PutString(KeySubnetMask, lease.MaskString())
}

// WriteSubmission stores the fields set by the configuration UI and marks
// the network as configured. Keys not carried by the submission are kept.
func WriteSubmission(s *store.Session, sub Submission) error {
	values := []struct{ key, value string }{
		{KeyWifiEssid, sub.SSID},
		{KeyWifiPassword, sub.Secret},
		{KeyPixelTubeNumber, itoa(sub.PixelTubeNumber)},
		{KeyArtNetUniverse, strconv.Itoa(sub.ArtNetUniverse)},
		{KeyArtNetStartAddress, itoa(sub.ArtNetStartAddress)},
	}
	for _, v := range values {
		if err := s.PutString(v.key, v.value); err != nil {
			return err
		}
	}
	return SetConfigured(s, true)
}

func formatBool(b bool) string {
	if b {
		return storedTrue
	}
	return storedFalse
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
