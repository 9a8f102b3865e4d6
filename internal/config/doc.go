// Package config loads the daemon settings of basecamp.
//
// Settings are read from a YAML file, /etc/basecamp/basecamp.yaml unless
// BASECAMP_CONFIG or the --config flag names another. A missing file or
// missing keys fall back to NewSettings:
//
//	version: 1
//	interface: wlan0
//	config_dir: /var/lib/basecamp/config
//	state_dir: /var/lib/basecamp/state
//	setup_encryption: secured    # none | secured
//	config_ui: access_point      # always | access_point
//	http_addr: ":80"
//	dns_addr: ":53"
//	restart_delay: 2s
//
// The network configuration and boot health stores are separate files below
// config_dir and state_dir. A factory reset erases config_dir only, so
// state_dir must not lie inside it.
package config
