package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeltube/basecamp/internal/config"
	"github.com/pixeltube/basecamp/internal/discovery"
	"github.com/pixeltube/basecamp/internal/platform"
	"github.com/pixeltube/basecamp/internal/provision"
	"github.com/pixeltube/basecamp/internal/ui"
)

// Command flags
var (
	plainOutput bool
	noRestart   bool
	assumeYes   bool
	scanTimeout int
	forceWrite  bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(initConfigCmd)

	resetCmd.AddCommand(resetNetworkCmd)
	resetCmd.AddCommand(resetFactoryCmd)
}

// statusCmd prints the system info panel
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system info and the setup access point password",
	Long: `Show the device identity, addresses, the setup access point name and its
password, and the number of unsuccessful boots so far.

The password is printed in cleartext; use this on the local console only.`,
	Example: `  basecamp status

  # Without colors, for a serial console
  basecamp status --plain`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print without styling")
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctrl, err := env.controller(cmd.Context(), provision.Options{})
	if err != nil {
		return err
	}

	panel := ctrl.Panel()
	if failures, err := env.health.Failures(); err == nil {
		panel.Add("Boot failures", strconv.FormatUint(uint64(failures), 10))
	}

	if plainOutput {
		fmt.Fprint(cmd.OutOrStdout(), panel.Plain())
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), panel.Render())
	return nil
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the network configuration or the whole device",
}

func init() {
	resetCmd.PersistentFlags().BoolVar(&noRestart, "no-restart", false, "Do not restart the device afterwards")
}

var resetNetworkCmd = &cobra.Command{
	Use:   "network",
	Short: "Forget the Wi-Fi network and restart into setup mode",
	Long: `Mark the stored network as unconfigured and clear the boot counter. The
device number, Art-Net settings and the setup access point password are kept.
The device restarts into setup mode unless --no-restart is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		if err := env.recovery().ResetNetwork(); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), ui.NewFailureResult("Network reset failed", err,
				"Check that "+env.settings.ConfigDir+" is writable",
			).Render())
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult("Network configuration reset",
			ui.Row{Key: "Next boot", Value: "setup access point"},
		).Render())
		return restartUnlessDisabled(env.restarter(), "network reset requested")
	},
}

var resetFactoryCmd = &cobra.Command{
	Use:   "factory",
	Short: "Erase all stored settings and restart",
	Long: `Erase the configuration storage: Wi-Fi credentials, device number, Art-Net
settings and the setup access point password. The boot counter is cleared.
The device restarts into setup mode unless --no-restart is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		if !assumeYes && !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), ui.FactoryResetConfirmation) {
			return nil
		}

		if err := env.recovery().FactoryReset(env.settings.ConfigDir); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), ui.NewFailureResult("Factory reset failed", err,
				"Stop the basecamp service before resetting",
				"Check that "+env.settings.ConfigDir+" is writable",
			).Render())
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult("Factory reset complete",
			ui.Row{Key: "Erased", Value: env.settings.ConfigDir},
			ui.Row{Key: "Next boot", Value: "setup access point, new password"},
		).Render())
		return restartUnlessDisabled(env.restarter(), "factory reset requested")
	},
}

func init() {
	resetFactoryCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

func restartUnlessDisabled(r platform.Restarter, reason string) error {
	if noRestart {
		return nil
	}
	return r.Restart(reason)
}

// scanCmd finds other pixel tubes on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for pixel tubes on the network",
	Long: `Scan for pixel tubes using mDNS/DNS-SD discovery.

Configured tubes announce their configuration page in client mode. The list
shows each tube's number, address and Art-Net settings.`,
	Example: `  # Scan for 5 seconds (default)
  basecamp scan

  # Longer scan for busy networks
  basecamp scan --timeout 15`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for pixel tubes (timeout: %ds)...\n\n", scanTimeout)

	scanner := discovery.NewScanner(env.settings.HostnamePrefix)
	scanner.Timeout = time.Duration(scanTimeout) * time.Second
	devices, err := scanner.ScanForDevices(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No pixel tubes found.")
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Unconfigured tubes do not announce themselves; join their setup access point")
		fmt.Fprintln(out, "  - Check that this machine is on the same network as the tubes")
		fmt.Fprintln(out, "  - Try increasing --timeout")
		return nil
	}

	fmt.Fprintf(out, "Found %d pixel tube(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Fprintf(out, "%d. %s\n", i+1, d)
		fmt.Fprintf(out, "   URL:     %s\n", d.BaseURL())
		if d.MAC != "" {
			fmt.Fprintf(out, "   MAC:     %s\n", d.MAC)
		}
		if start := d.GetMetadata(discovery.TXTArtNetStart); start != "" {
			fmt.Fprintf(out, "   Art-Net: universe %s, start address %s\n", d.GetMetadata(discovery.TXTArtNetUniverse), start)
		}
		if v := d.GetMetadata(discovery.TXTVersion); v != "" {
			fmt.Fprintf(out, "   Version: %s\n", v)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// initConfigCmd writes the default settings file
var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a settings file with the defaults",
	Example: `  basecamp init-config
  basecamp init-config --config ./basecamp.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ResolvePath(configPath)
		if _, err := os.Stat(path); err == nil && !forceWrite {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		settings := config.NewSettings()
		if iface != "" {
			settings.Interface = iface
		}
		if err := settings.Save(path); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult("Settings written",
			ui.Row{Key: "Path", Value: path},
			ui.Row{Key: "Interface", Value: settings.Interface},
		).Render())
		return nil
	},
}

func init() {
	initConfigCmd.Flags().BoolVar(&forceWrite, "force", false, "Overwrite an existing file")
}
