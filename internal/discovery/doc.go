// Package discovery announces and finds pixel tubes over mDNS.
//
// A unit in client mode announces its configuration UI as an "_http._tcp"
// service. The hostname carries the pixel tube number:
//
//	pixel-tube-7.local.             pixel tube 7
//	pixel-tube-unconfigured.local.  no number stored yet
//
// The TXT record repeats the device-identifying fields:
//
//	path=/ configured=true number=7 universe=0 start=126 mac=a4:cf:12:e8:0b:3c
//
// Scanner browses for these services and returns the units sorted by number.
// Discovery requires multicast on the local segment (UDP port 5353).
package discovery
