// Package provision runs the boot sequence of a pixel tube and owns the
// services it starts.
//
// Start is called once per boot, before anything is served:
//
//  1. An access point secret override is checked; a valid one forces an
//     encrypted setup network.
//  2. The configuration store is loaded. A corrupt store is reset to
//     defaults and the start is marked degraded.
//  3. The hostname is derived (pixel-tube-<n> or pixel-tube-unconfigured).
//  4. Boot recovery evaluates the reset cause. A network or factory reset
//     is carried out and the device restarted; Start returns false.
//  5. An access point secret is generated and stored if none exists.
//  6. The network mode is selected and the radio started.
//  7. The configuration UI is armed always or only in access point mode,
//     per settings, and the captive DNS responder while unconfigured.
//
// Run then serves the link event dispatcher, the configuration UI, captive
// DNS and the mDNS advertisement until its context is done. Faults are
// handled where they occur; Degraded and DegradedReasons report the ones the
// device recovered from.
package provision
