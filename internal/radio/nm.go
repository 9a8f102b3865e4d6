package radio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"go.uber.org/zap"
)

const (
	// ClientProfile is the NetworkManager connection used in client mode
	ClientProfile = "basecamp-client"

	// AccessPointProfile is the NetworkManager connection used in access point mode
	AccessPointProfile = "basecamp-ap"
)

// Config holds the settings of the NetworkManager radio.
type Config struct {
	// NMCLIPath is the path to the nmcli binary.
	// Default: "nmcli" (searches PATH)
	NMCLIPath string

	// EthtoolPath is used to read the permanent hardware address.
	// Default: "ethtool"
	EthtoolPath string

	// Interface is the wireless interface to manage.
	// Default: "wlan0"
	Interface string

	// AccessPointAddr is the address of the device on its own access point.
	// Default: 192.168.4.1/24
	AccessPointAddr *net.IPNet

	// Timeout bounds every nmcli call.
	// Default: 15 seconds
	Timeout time.Duration

	// PollInterval is the link state polling period of Watch.
	// Default: 2 seconds
	PollInterval time.Duration

	// ReconnectInitial and ReconnectMax pace reconnection attempts.
	// Default: 2 seconds and 1 minute
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// ReconnectRetries bounds attempts per link loss.
	// Default: 8
	ReconnectRetries uint64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NMCLIPath:   "nmcli",
		EthtoolPath: "ethtool",
		Interface:   "wlan0",
		AccessPointAddr: &net.IPNet{
			IP:   net.IPv4(192, 168, 4, 1).To4(),
			Mask: net.CIDRMask(24, 32),
		},
		Timeout:          15 * time.Second,
		PollInterval:     2 * time.Second,
		ReconnectInitial: 2 * time.Second,
		ReconnectMax:     time.Minute,
		ReconnectRetries: 8,
	}
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return stdout.String(), &CommandError{
			Args:     args,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}
	return stdout.String(), nil
}

// NMRadio drives a wireless interface through NetworkManager's nmcli.
type NMRadio struct {
	config Config
	run    Runner
	ctx    context.Context

	mu       sync.Mutex
	static   *netconfig.Lease
	hostname string
	permMAC  net.HardwareAddr

	reconnecting atomic.Bool
}

// NewNMRadio creates a radio. ctx bounds background reconnection.
func NewNMRadio(ctx context.Context, config Config) *NMRadio {
	return &NMRadio{config: config, run: execRunner, ctx: ctx}
}

func (r *NMRadio) nmcli(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.Timeout)
	defer cancel()

	logging.Debug("Running nmcli", zap.Strings("args", args))
	return r.run(ctx, r.config.NMCLIPath, args...)
}

// RequestStaticLease makes the next Connect configure lease as a manual
// address instead of running DHCP.
func (r *NMRadio) RequestStaticLease(lease netconfig.Lease) error {
	if !lease.Valid() {
		return fmt.Errorf("incomplete lease %s", lease)
	}
	r.mu.Lock()
	r.static = &lease
	r.mu.Unlock()
	return nil
}

// SetHostname sets the system hostname and the name sent with DHCP requests.
func (r *NMRadio) SetHostname(name string) error {
	r.mu.Lock()
	r.hostname = name
	r.mu.Unlock()

	if _, err := r.nmcli("general", "hostname", name); err != nil {
		return fmt.Errorf("failed to set hostname: %w", err)
	}
	return nil
}

// Connect replaces the client profile with one for ssid and activates it
// without waiting for association.
func (r *NMRadio) Connect(ssid, secret string) error {
	_, _ = r.nmcli("connection", "delete", AccessPointProfile)
	_, _ = r.nmcli("connection", "delete", ClientProfile)

	if _, err := r.nmcli(r.clientProfileArgs(ssid, secret)...); err != nil {
		return fmt.Errorf("failed to create client profile: %w", err)
	}
	if _, err := r.nmcli("--wait", "0", "connection", "up", ClientProfile); err != nil {
		return fmt.Errorf("failed to activate client profile: %w", err)
	}
	return nil
}

func (r *NMRadio) clientProfileArgs(ssid, secret string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", r.config.Interface,
		"con-name", ClientProfile,
		"ssid", ssid,
		"connection.autoconnect", "yes",
	}
	if secret != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", secret)
	}
	if r.hostname != "" {
		args = append(args, "ipv4.dhcp-hostname", r.hostname)
	}
	if r.static != nil {
		args = append(args,
			"ipv4.method", "manual",
			"ipv4.addresses", fmt.Sprintf("%s/%d", r.static.Address, r.static.PrefixLength()),
		)
		// 0.0.0.0 is a link without a default route
		if !r.static.Gateway.IsUnspecified() {
			args = append(args,
				"ipv4.gateway", r.static.Gateway.String(),
				"ipv4.dns", r.static.Gateway.String(),
			)
		}
	} else {
		args = append(args, "ipv4.method", "auto")
	}
	return args
}

// StartAccessPoint opens a shared-mode access point. An empty secret opens
// it without encryption.
func (r *NMRadio) StartAccessPoint(ssid, secret string) error {
	_, _ = r.nmcli("connection", "delete", ClientProfile)
	_, _ = r.nmcli("connection", "delete", AccessPointProfile)

	ones, _ := r.config.AccessPointAddr.Mask.Size()
	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", r.config.Interface,
		"con-name", AccessPointProfile,
		"ssid", ssid,
		"connection.autoconnect", "no",
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"ipv4.method", "shared",
		"ipv4.addresses", fmt.Sprintf("%s/%d", r.config.AccessPointAddr.IP, ones),
	}
	if secret != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", secret)
	}

	if _, err := r.nmcli(args...); err != nil {
		return fmt.Errorf("failed to create access point profile: %w", err)
	}
	if _, err := r.nmcli("connection", "up", AccessPointProfile); err != nil {
		return fmt.Errorf("failed to activate access point: %w", err)
	}
	return nil
}

// Reconnect starts a background reconnection of the client profile. Calls
// made while one is in progress are ignored.
func (r *NMRadio) Reconnect() error {
	if !r.reconnecting.CompareAndSwap(false, true) {
		logging.Debug("Reconnection already in progress")
		return nil
	}
	go func() {
		defer r.reconnecting.Store(false)
		if err := r.reconnect(r.ctx); err != nil {
			logging.Warn("Reconnection gave up", zap.Error(err))
		}
	}()
	return nil
}

func (r *NMRadio) reconnect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.config.ReconnectInitial
	bo.MaxInterval = r.config.ReconnectMax
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		_, err := r.nmcli("connection", "up", ClientProfile)
		if err != nil {
			var cmdErr *CommandError
			if errors.As(err, &cmdErr) && cmdErr.ExitCode == 10 {
				// exit code 10: the profile no longer exists
				return backoff.Permanent(err)
			}
			logging.Debug("Reconnection attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(bo, r.config.ReconnectRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return err
	}
	logging.LogNetworkEvent("reconnected", zap.Int("attempts", attempt))
	return nil
}

// HardwareAddr returns the permanent address of the interface, falling back
// to the current one. The permanent address is cached after the first read.
func (r *NMRadio) HardwareAddr() net.HardwareAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.permMAC != nil {
		return r.permMAC
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.config.Timeout)
	defer cancel()
	if out, err := r.run(ctx, r.config.EthtoolPath, "-P", r.config.Interface); err == nil {
		if mac, ok := parsePermanentAddr(out); ok {
			r.permMAC = mac
			return mac
		}
	}

	mac := r.CurrentHardwareAddr()
	if mac != nil {
		r.permMAC = mac
	}
	return mac
}

// CurrentHardwareAddr returns the address the interface currently uses
func (r *NMRadio) CurrentHardwareAddr() net.HardwareAddr {
	iface, err := net.InterfaceByName(r.config.Interface)
	if err != nil {
		logging.Warn("Failed to look up interface", zap.String("interface", r.config.Interface), zap.Error(err))
		return nil
	}
	return iface.HardwareAddr
}

// parsePermanentAddr reads "Permanent address: aa:bb:cc:dd:ee:ff" as printed
// by ethtool -P. An all-zero address means the driver does not report one.
func parsePermanentAddr(out string) (net.HardwareAddr, bool) {
	_, value, ok := strings.Cut(strings.TrimSpace(out), ":")
	if !ok {
		return nil, false
	}
	mac, err := net.ParseMAC(strings.TrimSpace(value))
	if err != nil {
		return nil, false
	}
	for _, b := range mac {
		if b != 0 {
			return mac, true
		}
	}
	return nil, false
}

// AccessPointAddr returns the address of the device on its access point
func (r *NMRadio) AccessPointAddr() net.IP {
	return r.config.AccessPointAddr.IP
}

// Addrs returns the IPv4 addresses currently assigned to the interface
func (r *NMRadio) Addrs() []net.IP {
	iface, err := net.InterfaceByName(r.config.Interface)
	if err != nil {
		return nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}

	var ips []net.IP
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			ips = append(ips, ipnet.IP.To4())
		}
	}
	return ips
}

// deviceState returns the NetworkManager state code and active connection
// name of the interface.
func (r *NMRadio) deviceState() (int, string, error) {
	out, err := r.nmcli("-g", "GENERAL.STATE,GENERAL.CONNECTION", "device", "show", r.config.Interface)
	if err != nil {
		return 0, "", err
	}
	return parseDeviceState(out)
}

// parseDeviceState parses the terse output of nmcli device show, e.g.
//
//	100 (connected)
//	basecamp-client
func parseDeviceState(out string) (int, string, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return 0, "", fmt.Errorf("empty device state")
	}
	code, _, _ := strings.Cut(lines[0], " ")
	state, err := strconv.Atoi(code)
	if err != nil {
		return 0, "", fmt.Errorf("invalid device state %q: %w", lines[0], err)
	}
	conn := ""
	if len(lines) > 1 {
		conn = strings.TrimSpace(lines[1])
	}
	return state, conn, nil
}
