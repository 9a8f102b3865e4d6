// Package logging provides structured logging for the basecamp daemon.
//
// This package wraps a zap logger with convenience functions for the log
// patterns used throughout provisioning: boot evaluation, network events and
// configuration UI requests.
//
// # Log Levels
//
//   - Debug: store sessions, individual DNS answers, HTTP requests
//   - Info: boot decisions, mode selection, address leases
//   - Warn: recovered faults (corrupt config, rejected secrets)
//   - Error: failures that degrade the start
//
// # Configuration
//
// Initialize logging at daemon startup:
//
//	if err := logging.Initialize("info"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to the BASECAMP_LOG_LEVEL environment variable.
// When that is empty too the logger is a no-op, which keeps console commands
// such as "basecamp status" quiet.
//
// # Secrets
//
// The access point secret is only ever logged at debug level. The cleartext
// banner printed at boot goes through the ui package to the local console.
package logging
