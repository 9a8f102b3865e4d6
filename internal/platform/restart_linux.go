//go:build linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/pixeltube/basecamp/internal/logging"
	"go.uber.org/zap"
)

// SystemRestarter reboots the machine with reboot(2).
type SystemRestarter struct {
	// MarkerPath receives a "software" reset marker before the reboot
	MarkerPath string
}

// Restart syncs filesystems and reboots
func (r *SystemRestarter) Restart(reason string) error {
	logging.Warn("Restarting device", zap.String("reason", reason))
	if r.MarkerPath != "" {
		if err := WriteMarker(r.MarkerPath, ResetSoftware); err != nil {
			return err
		}
	}
	logging.Sync()

	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot failed: %w", err)
	}
	return nil
}
