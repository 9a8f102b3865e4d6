package platform

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/store"
	"go.uber.org/zap"
)

// Restarter restarts the device. On success a real implementation does not
// return.
type Restarter interface {
	Restart(reason string) error
}

// ExitRestarter ends the process instead of rebooting. It suits setups where
// a supervisor restarts the daemon, and --simulate runs.
type ExitRestarter struct {
	MarkerPath string
	Code       int

	// Exit defaults to os.Exit
	Exit func(code int)
}

// Restart writes the marker and exits
func (r *ExitRestarter) Restart(reason string) error {
	logging.Warn("Restarting daemon", zap.String("reason", reason), zap.Int("exit_code", r.Code))
	if r.MarkerPath != "" {
		if err := WriteMarker(r.MarkerPath, ResetSoftware); err != nil {
			return err
		}
	}
	logging.Sync()

	exit := r.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(r.Code)
	return nil
}

// DefaultDrainTimeout bounds how long a guarded restart waits for open store
// sessions to end.
const DefaultDrainTimeout = 5 * time.Second

// GuardedRestarter restarts only once no session is open on Namespaces. The
// namespaces stay closed to new sessions while the restart is issued, and
// are reopened if Restart returns.
type GuardedRestarter struct {
	Restarter  Restarter
	Namespaces []*store.Namespace

	// Timeout defaults to DefaultDrainTimeout
	Timeout time.Duration
}

// NewGuardedRestarter guards r with the given namespaces
func NewGuardedRestarter(r Restarter, namespaces ...*store.Namespace) *GuardedRestarter {
	return &GuardedRestarter{Restarter: r, Namespaces: namespaces}
}

// Restart waits for the stores to drain and restarts. It refuses to restart
// if a session is still open after Timeout.
func (g *GuardedRestarter) Restart(reason string) error {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	release, err := store.Drain(ctx, g.Namespaces...)
	if err != nil {
		logging.Error("Restart refused, store sessions still open",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return fmt.Errorf("restart refused: %w", err)
	}
	defer release()

	return g.Restarter.Restart(reason)
}

// RestartAfter restarts the device once delay has passed. The returned timer
// can be stopped to cancel the restart.
func RestartAfter(r Restarter, delay time.Duration, reason string) *time.Timer {
	logging.Info("Restart scheduled",
		zap.String("reason", reason),
		zap.Duration("delay", delay),
	)
	return time.AfterFunc(delay, func() {
		if err := r.Restart(reason); err != nil {
			logging.Error("Scheduled restart failed", zap.Error(err))
		}
	})
}
