package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pixeltube/basecamp/internal/logging"
	"go.uber.org/zap"
)

// ResetCause is the platform-reported reason for the current boot
type ResetCause int

const (
	// ResetUnknown covers every cause the platform cannot classify
	ResetUnknown ResetCause = iota
	// ResetPowerOn is a cold boot after the supply was connected
	ResetPowerOn
	// ResetButton is a press of the hardware reset button
	ResetButton
	// ResetSoftware is a restart requested by this daemon or an operator
	ResetSoftware
	// ResetWatchdog is a restart forced by the hardware watchdog
	ResetWatchdog
)

// String returns the marker-file spelling of the cause
func (c ResetCause) String() string {
	switch c {
	case ResetPowerOn:
		return "power-on"
	case ResetButton:
		return "button"
	case ResetSoftware:
		return "software"
	case ResetWatchdog:
		return "watchdog"
	default:
		return "unknown"
	}
}

// ParseResetCause parses the marker-file spelling of a cause
func ParseResetCause(s string) (ResetCause, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "power-on":
		return ResetPowerOn, nil
	case "button":
		return ResetButton, nil
	case "software":
		return ResetSoftware, nil
	case "watchdog":
		return ResetWatchdog, nil
	case "unknown":
		return ResetUnknown, nil
	default:
		return ResetUnknown, fmt.Errorf("unknown reset cause %q", s)
	}
}

// CountsAsBootAttempt reports whether a boot with this cause is counted
// towards recovery. Only power cycles and the reset button are; restarts the
// device caused itself are not held against it.
func (c ResetCause) CountsAsBootAttempt() bool {
	return c == ResetPowerOn || c == ResetButton
}

// ResetCauseSource reports why the device booted
type ResetCauseSource interface {
	ResetCause() (ResetCause, error)
}

// MarkerResetCause derives the reset cause from a marker file and the
// watchdog boot status.
//
// The marker is written just before a deliberate restart (see WriteMarker)
// and consumed on the next boot. Without a marker a non-zero watchdog boot
// status means a watchdog reset; anything else is a power-on.
type MarkerResetCause struct {
	MarkerPath         string
	WatchdogStatusPath string
}

// ResetCause implements ResetCauseSource. The marker is removed once read so
// a following power cycle is not mistaken for a software restart.
func (m *MarkerResetCause) ResetCause() (ResetCause, error) {
	data, err := os.ReadFile(m.MarkerPath)
	switch {
	case err == nil:
		if rmErr := os.Remove(m.MarkerPath); rmErr != nil {
			logging.Warn("Failed to consume reset marker",
				zap.String("path", m.MarkerPath),
				zap.Error(rmErr),
			)
		}
		cause, perr := ParseResetCause(string(data))
		if perr != nil {
			return ResetUnknown, nil
		}
		return cause, nil
	case !os.IsNotExist(err):
		return ResetUnknown, fmt.Errorf("failed to read reset marker: %w", err)
	}

	if m.WatchdogStatusPath != "" {
		if raw, err := os.ReadFile(m.WatchdogStatusPath); err == nil {
			if status, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && status != 0 {
				return ResetWatchdog, nil
			}
		}
	}

	return ResetPowerOn, nil
}

// WriteMarker records the cause of the restart that is about to happen
func WriteMarker(path string, cause ResetCause) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(cause.String()+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write reset marker: %w", err)
	}
	return nil
}

// StaticResetCause always reports the same cause
type StaticResetCause ResetCause

// ResetCause implements ResetCauseSource
func (s StaticResetCause) ResetCause() (ResetCause, error) {
	return ResetCause(s), nil
}
