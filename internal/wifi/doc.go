// Package wifi selects the network role of the device for the current boot.
//
// A configured device joins the stored network as a client. If a previous
// lease is stored it is requested as a static address first, which skips
// the DHCP round trip on a known network. An unconfigured device opens a
// setup access point named after its hardware address:
//
//	PixelTube_a4cf12e80b3c
//
// The access point is encrypted with the stored secret when the setup
// encryption policy asks for it and the secret has at least MinSecretLength
// characters; otherwise it is open.
//
// Begin only initiates the radio. Whether the association succeeds is
// reported later through link events handled by the events package.
package wifi
