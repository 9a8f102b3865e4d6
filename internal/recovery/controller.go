package recovery

import (
	"fmt"

	"github.com/pixeltube/basecamp/internal/health"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"github.com/pixeltube/basecamp/internal/platform"
	"github.com/pixeltube/basecamp/internal/store"
	"go.uber.org/zap"
)

// Escalation thresholds. A boot is counted before it is compared, so the
// network reset happens when the counter first exceeds NetworkResetAfter and
// the factory reset when an unconfigured device exceeds FactoryResetAfter.
const (
	NetworkResetAfter = 3
	FactoryResetAfter = 2
)

// Action is the outcome of a boot evaluation
type Action int

const (
	// Continue boots normally
	Continue Action = iota
	// ResetNetworkConfigAndReboot marks the network as unconfigured and
	// restarts into access point mode
	ResetNetworkConfigAndReboot
	// FactoryResetAndReboot wipes the configuration filesystem and restarts
	FactoryResetAndReboot
)

// String returns a human-readable name for the action
func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case ResetNetworkConfigAndReboot:
		return "reset-network-config"
	case FactoryResetAndReboot:
		return "factory-reset"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// RequiresRestart reports whether the action ends in a device restart
func (a Action) RequiresRestart() bool {
	return a != Continue
}

// Decision is the pure result of Decide
type Decision struct {
	Action Action

	// Failures is the counter value to persist. Zero means the health
	// namespace is cleared.
	Failures uint
}

// Decide computes the recovery action for a boot.
//
// Boots the device caused itself do not count and clear the counter. Every
// other boot increments it. More than NetworkResetAfter counted boots reset
// the network configuration; more than FactoryResetAfter counted boots while
// already unconfigured wipe all configuration.
func Decide(cause platform.ResetCause, failures uint, configured bool) Decision {
	if !cause.CountsAsBootAttempt() {
		return Decision{Action: Continue}
	}

	failures++

	switch {
	case failures > NetworkResetAfter:
		return Decision{Action: ResetNetworkConfigAndReboot}
	case failures > FactoryResetAfter && !configured:
		return Decision{Action: FactoryResetAndReboot}
	default:
		return Decision{Action: Continue, Failures: failures}
	}
}

// Controller applies boot decisions to the health and configuration
// namespaces. It is the only writer of the boot counter on the failure path.
type Controller struct {
	health *health.Counter
	config *store.Namespace
}

// NewController creates a recovery controller
func NewController(counter *health.Counter, config *store.Namespace) *Controller {
	return &Controller{health: counter, config: config}
}

// Evaluate reads the boot counter, decides and persists the outcome.
//
// cfg is the configuration loaded for this boot. On a network reset its
// IsConfigured flag is cleared in memory and on flash before the counter is
// cleared. Evaluate never restarts the device; the caller does that for any
// action other than Continue once Evaluate has returned. Store failures are
// returned together with the action so the caller can still act on it.
func (c *Controller) Evaluate(cause platform.ResetCause, cfg *netconfig.NetworkConfig) (Action, error) {
	failures, err := c.health.Failures()
	if err != nil {
		// An unreadable counter counts from zero
		logging.Warn("Failed to read boot counter", zap.Error(err))
		failures = 0
	}

	d := Decide(cause, failures, cfg.IsConfigured)
	logging.LogBootEvaluation(cause.String(), d.Failures, d.Action.String())

	switch d.Action {
	case ResetNetworkConfigAndReboot:
		logging.Warn("Too many unsuccessful boots, resetting network configuration")
		if err := c.markUnconfigured(); err != nil {
			return d.Action, err
		}
		cfg.IsConfigured = false
		return d.Action, c.health.Clear()

	case FactoryResetAndReboot:
		logging.Warn("Unsuccessful boots while unconfigured, factory reset forced")
		return d.Action, c.health.Clear()

	default:
		if d.Failures == 0 {
			return d.Action, c.health.Clear()
		}
		return d.Action, c.health.Record(d.Failures)
	}
}

func (c *Controller) markUnconfigured() error {
	s, err := c.config.Begin(false)
	if err != nil {
		return fmt.Errorf("failed to open config store: %w", err)
	}
	if err := netconfig.SetConfigured(s, false); err != nil {
		_ = s.End()
		return err
	}
	return s.End()
}

// ResetNetwork is the operator triggered network reset: the stored network
// is marked unconfigured and the boot counter cleared. Credentials and the
// access point secret stay.
func (c *Controller) ResetNetwork() error {
	if err := c.markUnconfigured(); err != nil {
		return err
	}
	return c.health.Clear()
}

// FactoryReset wipes the configuration storage below root and clears the
// boot counter. It refuses to run while a store session is open.
func (c *Controller) FactoryReset(root string) error {
	if err := store.Quiesced(c.config, c.health.Namespace()); err != nil {
		return err
	}
	if err := store.Format(root); err != nil {
		return fmt.Errorf("failed to format configuration storage: %w", err)
	}
	return c.health.Clear()
}
