// Package platform wraps the few board facilities provisioning depends on:
// the reason for the current boot and the ability to restart.
//
// Linux does not report a reset reason the way a microcontroller does, so
// basecamp keeps its own. Every deliberate restart writes a marker file
// naming the cause; the reset-button handler writes "button". On the next
// boot MarkerResetCause consumes the marker. A missing marker means either a
// watchdog reset (non-zero watchdog boot status) or a plain power-on.
//
// Restarters always leave a "software" marker behind, so a restart issued
// by recovery or the configuration UI never counts as an unsuccessful boot.
package platform
