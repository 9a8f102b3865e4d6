package main

import (
	"context"
	"fmt"
	"net"

	"github.com/pixeltube/basecamp/internal/config"
	"github.com/pixeltube/basecamp/internal/health"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"github.com/pixeltube/basecamp/internal/platform"
	"github.com/pixeltube/basecamp/internal/provision"
	"github.com/pixeltube/basecamp/internal/radio"
	"github.com/pixeltube/basecamp/internal/recovery"
	"github.com/pixeltube/basecamp/internal/store"
	"go.uber.org/zap"
)

// simulatedMAC is a locally administered address used by --simulate
const simulatedMAC = "02:00:5e:10:00:01"

// environment holds the settings and stores shared by all commands
type environment struct {
	path     string
	settings *config.Settings
	config   *store.Namespace
	health   *health.Counter
}

func loadEnvironment() (*environment, error) {
	path := config.ResolvePath(configPath)
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if iface != "" {
		settings.Interface = iface
	}

	logging.Debug("Settings loaded",
		zap.String("path", path),
		zap.String("interface", settings.Interface),
		zap.Bool("simulate", simulate),
	)

	return &environment{
		path:     path,
		settings: settings,
		config:   store.NewNamespace("config", settings.ConfigStorePath()),
		health:   health.NewCounter(store.NewNamespace("health", settings.HealthStorePath())),
	}, nil
}

// radio returns the NetworkManager radio, or a simulated one with --simulate
func (e *environment) radio(ctx context.Context) provision.Radio {
	if simulate {
		mac, _ := net.ParseMAC(simulatedMAC)
		sim := radio.NewSimulated(mac)
		if lease, ok := netconfig.ParseLease("10.0.0.50", "10.0.0.1", "255.255.255.0"); ok {
			sim.DHCPLease = &lease
		}
		return sim
	}

	cfg := radio.DefaultConfig()
	cfg.Interface = e.settings.Interface
	cfg.PollInterval = e.settings.PollInterval
	return radio.NewNMRadio(ctx, cfg)
}

// restarter restarts once the stores have no open session
func (e *environment) restarter() platform.Restarter {
	return platform.NewGuardedRestarter(e.deviceRestarter(), e.config, e.health.Namespace())
}

// deviceRestarter is the unguarded restart of the device or daemon
func (e *environment) deviceRestarter() platform.Restarter {
	if simulate {
		return &platform.ExitRestarter{MarkerPath: e.settings.ResetMarker}
	}
	return &platform.SystemRestarter{MarkerPath: e.settings.ResetMarker}
}

func (e *environment) resetCause() platform.ResetCauseSource {
	src := &platform.MarkerResetCause{MarkerPath: e.settings.ResetMarker}
	if !simulate {
		src.WatchdogStatusPath = e.settings.WatchdogStatus
	}
	return src
}

func (e *environment) recovery() *recovery.Controller {
	return recovery.NewController(e.health, e.config)
}

func (e *environment) controller(ctx context.Context, opts provision.Options) (*provision.Controller, error) {
	opts.Settings = e.settings
	opts.Config = e.config
	opts.Health = e.health
	opts.Radio = e.radio(ctx)
	opts.ResetCause = e.resetCause()
	// The controller guards it with its own stores
	opts.Restarter = e.deviceRestarter()

	ctrl, err := provision.NewController(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create provisioning controller: %w", err)
	}
	return ctrl, nil
}
