// Package captive runs the DNS responder of the setup access point.
//
// Every A query is answered with the access point address, whatever name was
// asked for. Phones and laptops joining the setup network then reach the
// configuration page through their captive portal check. Other query types
// get an empty answer so clients fall back to IPv4.
package captive
