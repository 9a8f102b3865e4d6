package netconfig

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Limits for the device-identifying fields. One pixel tube occupies 125
// Art-Net channels, so the last usable start address is 387.
const (
	MinPixelTubeNumber    = 1
	MaxPixelTubeNumber    = 99
	MinArtNetUniverse     = 0
	MaxArtNetUniverse     = 32767
	MinArtNetStartAddress = 1
	MaxArtNetStartAddress = 387
)

// Submission is a validated configuration UI form.
type Submission struct {
	SSID               string
	Secret             string
	PixelTubeNumber    int
	ArtNetUniverse     int
	ArtNetStartAddress int
}

// ValidateWiFiSSID validates a WiFi SSID.
// SSIDs must be non-empty and <= 32 characters (the 802.11 limit).
func ValidateWiFiSSID(ssid string) error {
	if ssid == "" {
		return NewValidationError(KeyWifiEssid, "WiFi SSID cannot be empty")
	}
	if len(ssid) > 32 {
		return NewValidationError(KeyWifiEssid, fmt.Sprintf("WiFi SSID too long (max 32 chars): %d chars", len(ssid)))
	}
	return nil
}

// ValidateWiFiPassword validates a WiFi password.
// An empty password selects an open network; otherwise WPA2 requires 8-63 characters.
func ValidateWiFiPassword(password string) error {
	if password == "" {
		return nil
	}
	if len(password) < 8 {
		return NewValidationError(KeyWifiPassword, fmt.Sprintf("WPA2 password too short (min 8 chars): %d chars", len(password)))
	}
	if len(password) > 63 {
		return NewValidationError(KeyWifiPassword, fmt.Sprintf("WPA2 password too long (max 63 chars): %d chars", len(password)))
	}
	return nil
}

// validateRange parses an optional numeric form field. Empty means unset (0).
func validateRange(field, raw string, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewValidationError(field, fmt.Sprintf("not a number: %q", raw))
	}
	if n < min || n > max {
		return 0, NewValidationError(field, fmt.Sprintf("must be %d-%d, got %d", min, max, n))
	}
	return n, nil
}

// ParseSubmission validates a posted configuration form. All field errors are
// joined into the returned error.
func ParseSubmission(form url.Values) (Submission, error) {
	sub := Submission{
		SSID:   strings.TrimSpace(form.Get(KeyWifiEssid)),
		Secret: form.Get(KeyWifiPassword),
	}

	var errs []error
	if err := ValidateWiFiSSID(sub.SSID); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateWiFiPassword(sub.Secret); err != nil {
		errs = append(errs, err)
	}

	var err error
	if sub.PixelTubeNumber, err = validateRange(KeyPixelTubeNumber, form.Get(KeyPixelTubeNumber), MinPixelTubeNumber, MaxPixelTubeNumber); err != nil {
		errs = append(errs, err)
	}
	if sub.ArtNetUniverse, err = validateRange(KeyArtNetUniverse, form.Get(KeyArtNetUniverse), MinArtNetUniverse, MaxArtNetUniverse); err != nil {
		errs = append(errs, err)
	}
	if sub.ArtNetStartAddress, err = validateRange(KeyArtNetStartAddress, form.Get(KeyArtNetStartAddress), MinArtNetStartAddress, MaxArtNetStartAddress); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return Submission{}, errors.Join(errs...)
	}
	return sub, nil
}
