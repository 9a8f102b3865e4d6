// Package events reacts to link-layer notifications from the radio.
//
// An AddressAcquired event stores the lease for the next boot and resets the
// boot counter; it is the only signal that a boot succeeded. A LinkLost event
// asks the radio to reconnect and never counts as a boot failure. Other events
// are ignored.
//
// Events are delivered by a Dispatcher, which reads a channel from a single
// goroutine so the Handler is never re-entered.
package events
