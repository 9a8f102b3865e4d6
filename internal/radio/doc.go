// Package radio implements the Wi-Fi driver used by the provisioning
// controller.
//
// NMRadio manages one wireless interface through NetworkManager. Client mode
// uses the connection profile "basecamp-client", setup mode the profile
// "basecamp-ap" in shared mode, which runs DHCP for joining devices. Calls
// only initiate a state change; Watch polls the interface and turns link
// changes into events:
//
//	client profile activated with address  ->  events.AddressAcquired
//	client profile deactivated             ->  events.LinkLost
//	other device state change              ->  events.Other
//
// Reconnection after a link loss runs in the background with exponential
// backoff.
//
// Simulated stands in for the interface on machines without a managed
// radio and in tests.
package radio
