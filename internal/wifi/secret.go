package wifi

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
)

const (
	// MinSecretLength is the shortest passphrase WPA2 accepts
	MinSecretLength = 8

	// DefaultSecretLength is the length of generated access point secrets
	DefaultSecretLength = 8

	// secretAlphabet leaves out 0, 1, O, I, L, i and l, which are easy to confuse on a label
	secretAlphabet = "abcdefghjkmnopqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789.-,:$/"
)

// ErrSecretTooShort is returned for access point secrets below MinSecretLength
var ErrSecretTooShort = errors.New("access point secret too short")

// ValidateSecret checks an access point secret against the platform minimum
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: %d chars, need at least %d", ErrSecretTooShort, len(secret), MinSecretLength)
	}
	return nil
}

// GenerateSecret returns a random secret drawn from an alphabet without
// visually ambiguous characters. Lengths below MinSecretLength are raised to it.
func GenerateSecret(length int) (string, error) {
	if length < MinSecretLength {
		length = MinSecretLength
	}

	max := big.NewInt(int64(len(secretAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate secret: %w", err)
		}
		b.WriteByte(secretAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatMAC renders a hardware address as lowercase hex, with delimiter
// between octets (e.g. FormatMAC(mac, ":") returns "aa:bb:cc:dd:ee:ff").
func FormatMAC(mac net.HardwareAddr, delimiter string) string {
	parts := make([]string, len(mac))
	for i, b := range mac {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, delimiter)
}

// AccessPointName returns the SSID of the setup access point. It depends
// only on the hardware address, so it is stable across boots and unique
// across units.
func AccessPointName(prefix string, mac net.HardwareAddr) string {
	if prefix == "" {
		prefix = DefaultAccessPointPrefix
	}
	return prefix + "_" + FormatMAC(mac, "")
}
