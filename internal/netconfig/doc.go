// Package netconfig defines the network configuration of the device and its
// mapping onto the configuration namespace.
//
// On flash the configuration is a flat string map whose keys and
// "True"/"False" booleans are shared with earlier firmware. Read converts that
// map into a NetworkConfig right after it is loaded, so the rest of the
// daemon works with typed values:
//
//	cfg, err := netconfig.Load(configNamespace)
//	if cfg.IsConfigured && cfg.LastLease != nil {
//	    // request cfg.LastLease before associating
//	}
//
// A stored lease is only used when address, gateway and mask all parse as
// IPv4 addresses; anything else reads as no lease.
//
// The package also validates configuration UI submissions. Field errors are
// reported as *ValidationError values joined with errors.Join.
package netconfig
