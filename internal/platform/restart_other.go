//go:build !linux

package platform

import "errors"

// SystemRestarter reboots the machine. Only Linux is supported.
type SystemRestarter struct {
	MarkerPath string
}

// Restart always fails on this platform
func (r *SystemRestarter) Restart(reason string) error {
	return errors.New("system restart is only supported on linux")
}
