// Package webui serves the configuration page of the device.
//
// Routes:
//
//	GET  /            configuration form
//	POST /save        store the form and restart after RestartDelay
//	GET  /status      device status as JSON
//	GET  /ws/status   status stream (websocket), one message per change
//
// While the setup access point is up, PortalHost is set to the access point
// address and the connectivity checks of phones and laptops, as well as any
// unknown path, are redirected to the form. Together with the captive DNS
// responder this opens the form as soon as a client joins the network.
//
// Submissions are rate limited per client. A valid submission is written in
// one session of the configuration store and marks the network configured;
// the stored lease and access point secret are kept.
package webui
