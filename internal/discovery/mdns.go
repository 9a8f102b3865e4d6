package discovery

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pixeltube/basecamp/internal/netconfig"
)

const (
	// ServiceType is the mDNS service type of the configuration UI
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is the default HTTP port of the configuration UI
	DefaultPort = 80
)

// TXT record keys announced by Advertiser
const (
	TXTPath              = "path"
	TXTNumber            = "number"
	TXTArtNetUniverse    = "universe"
	TXTArtNetStart       = "start"
	TXTMAC               = "mac"
	TXTVersion           = "version"
	TXTConfigured        = "configured"
	unconfiguredHostname = "unconfigured"
)

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	hostPattern *regexp.Regexp
}

// NewScanner creates a scanner for units whose hostnames start with prefix
// (netconfig.DefaultHostnamePrefix if empty).
func NewScanner(prefix string) *Scanner {
	if prefix == "" {
		prefix = netconfig.DefaultHostnamePrefix
	}
	return &Scanner{
		Timeout:     DefaultScanTimeout,
		hostPattern: hostnamePattern(prefix),
	}
}

// hostnamePattern matches "<prefix>-<n>.local." and "<prefix>-unconfigured.local."
func hostnamePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d+|` + unconfiguredHostname + `)\.local\.?$`)
}

// ScanForDevices discovers pixel tubes until the timeout expires or ctx is
// done. Devices are sorted by number.
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		devices = make(map[string]*Device)
		done    = make(chan struct{})
	)

	go func() {
		defer close(done)
		for entry := range entries {
			if device := s.parseServiceEntry(entry); device != nil {
				mu.Lock()
				devices[device.Hostname] = device
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// the resolver closes entries once it stops
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return sortDevices(devices), nil
}

// FindDevice waits for the unit with the given number
func (s *Scanner) FindDevice(ctx context.Context, number int) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	deviceChan := make(chan *Device, 1)

	go func() {
		for entry := range entries {
			device := s.parseServiceEntry(entry)
			if device != nil && device.Number == number {
				select {
				case deviceChan <- device:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case device := <-deviceChan:
		return device, nil
	case <-ctx.Done():
		select {
		case device := <-deviceChan:
			return device, nil
		default:
		}
		return nil, fmt.Errorf("pixel tube %d not found within %s", number, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry is not a pixel tube.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	hostname := entry.HostName
	if hostname == "" {
		return nil
	}

	matches := s.hostPattern.FindStringSubmatch(hostname)
	if len(matches) < 2 {
		return nil
	}

	number := 0
	if matches[1] != unconfiguredHostname {
		n, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil
		}
		number = n
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := parseTXT(entry.Text)

	return &Device{
		Number:       number,
		Instance:     entry.Instance,
		Hostname:     hostname,
		IP:           ip,
		Port:         port,
		MAC:          metadata[TXTMAC],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// parseTXT splits "key=value" TXT strings; a key without value maps to "".
func parseTXT(text []string) map[string]string {
	metadata := make(map[string]string, len(text))
	for _, txt := range text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}
	return metadata
}

func sortDevices(m map[string]*Device) []*Device {
	devices := make([]*Device, 0, len(m))
	for _, d := range m {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Number != devices[j].Number {
			return devices[i].Number < devices[j].Number
		}
		return devices[i].Hostname < devices[j].Hostname
	})
	return devices
}
