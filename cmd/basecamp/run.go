package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pixeltube/basecamp/internal/discovery"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/provision"
	"github.com/pixeltube/basecamp/internal/version"
	"go.uber.org/zap"
)

var apSecret string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Provision the device and serve until stopped",
	Long: `Run the boot sequence and keep the device connected.

The boot sequence evaluates unsuccessful boots, makes sure a setup access
point secret exists, and either joins the stored network or opens the setup
access point. The configuration page, captive DNS and the mDNS announcement
are served until SIGINT or SIGTERM.

The system info, including the setup access point password, is printed to
stdout once at boot.`,
	Example: `  # Run on the device (usually from a systemd unit)
  basecamp run

  # Force an encrypted setup access point with a known password
  basecamp run --ap-secret 'tube-setup-2024'

  # Try it on a development machine
  basecamp run --simulate --config ./basecamp.yaml --log-level debug`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&apSecret, "ap-secret", "", "Setup access point password (at least 8 characters, forces encryption)")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := provision.Options{Console: cmd.OutOrStdout()}
	if env.settings.MDNS {
		opts.Advertiser = discovery.NewAdvertiser(env.settings.Interface)
	}

	ctrl, err := env.controller(ctx, opts)
	if err != nil {
		return err
	}

	logging.Info("Starting basecamp",
		zap.String("version", version.Full()),
		zap.String("settings", env.path),
	)

	if !ctrl.Start(apSecret) {
		return errors.New("recovery restart did not take effect")
	}

	if err := ctrl.Run(ctx); err != nil {
		return err
	}
	logging.Info("Shutdown signal received, basecamp stopped")
	return nil
}
