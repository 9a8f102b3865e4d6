// Package recovery decides, on every boot, whether the device may start
// normally or has to recover from a configuration that keeps it unreachable.
//
// # Escalation
//
// Only power cycles and reset-button presses are counted. Restarts the
// daemon issued itself (configuration saved, previous recovery) and watchdog
// resets clear the counter instead.
//
//	counted boots   configured   action
//	1..3            yes          Continue, counter persisted
//	4               yes          ResetNetworkConfigAndReboot
//	1..2            no           Continue, counter persisted
//	3               no           FactoryResetAndReboot
//
// The first rung only clears the configured flag, so the access point secret
// and device identifiers survive a bad Wi-Fi password. If the device still
// cannot complete a boot in access point mode the storage itself is suspect
// and the second rung wipes it.
//
// The counter is reset by the connectivity event handler when the device
// receives an address; that is the only success signal.
//
// # Restarts
//
// Decide is a pure function and Controller.Evaluate only writes the stores.
// Neither restarts the device: the provisioning controller performs the
// destructive step and the restart after every store session is closed.
package recovery
