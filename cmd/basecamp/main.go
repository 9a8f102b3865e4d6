// Basecamp provisions and supervises the Wi-Fi link of a pixel tube.
//
// On every boot it decides, from the stored configuration and the history
// of unsuccessful boots, whether the device joins its network, opens a
// setup access point with a configuration page, or resets itself.
//
// Usage:
//
//	basecamp run [flags]
//	basecamp status
//	basecamp reset network|factory
//
// See 'basecamp --help' for all commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
	iface      string
	simulate   bool
)

var rootCmd = &cobra.Command{
	Use:   "basecamp",
	Short: "Pixel tube provisioning daemon",
	Long: `Provisioning and resilience daemon for headless pixel tubes.

An unconfigured device opens a setup access point named after its hardware
address and serves a configuration page. A configured device joins its
network. Repeated unsuccessful boots reset the network configuration and,
if that does not help, the whole device.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		// The daemon logs by default; one-shot commands stay quiet
		if level == "" && cmd.Name() == "run" && os.Getenv(logging.LogLevelEnvVar) == "" {
			level = "info"
		}
		return logging.Initialize(level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default $BASECAMP_CONFIG or /etc/basecamp/basecamp.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&iface, "interface", "", "Wireless interface, overrides the settings file")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use a simulated radio and exit instead of rebooting")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "basecamp %s\n", version.Full())
	},
}
