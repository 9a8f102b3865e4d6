package discovery

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pixeltube/basecamp/internal/logging"
	"go.uber.org/zap"
)

// Advertisement describes the configuration UI of this unit.
type Advertisement struct {
	// Instance is the service instance name shown by browsers
	Instance string

	// Port is the HTTP port, DefaultPort if zero
	Port int

	// Number, Universe and StartAddress are the device-identifying fields
	Number       int
	Universe     int
	StartAddress int

	MAC        string
	Version    string
	Configured bool
}

// TXT returns the TXT record strings of the advertisement
func (a Advertisement) TXT() []string {
	txt := []string{
		TXTPath + "=/",
		TXTConfigured + "=" + strconv.FormatBool(a.Configured),
	}
	if a.Number > 0 {
		txt = append(txt, TXTNumber+"="+strconv.Itoa(a.Number))
	}
	if a.StartAddress > 0 {
		txt = append(txt,
			TXTArtNetUniverse+"="+strconv.Itoa(a.Universe),
			TXTArtNetStart+"="+strconv.Itoa(a.StartAddress),
		)
	}
	if a.MAC != "" {
		txt = append(txt, TXTMAC+"="+a.MAC)
	}
	if a.Version != "" {
		txt = append(txt, TXTVersion+"="+a.Version)
	}
	return txt
}

// Advertiser announces the configuration UI over mDNS.
type Advertiser struct {
	// Interface restricts announcements to one interface; empty uses all
	Interface string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser for the named interface
func NewAdvertiser(iface string) *Advertiser {
	return &Advertiser{Interface: iface}
}

func (a *Advertiser) interfaces() []net.Interface {
	if a.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts announcing ad, replacing any previous announcement.
func (a *Advertiser) Advertise(ad Advertisement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	port := ad.Port
	if port == 0 {
		port = DefaultPort
	}

	server, err := zeroconf.Register(ad.Instance, ServiceType, ServiceDomain, port, ad.TXT(), a.interfaces())
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server

	logging.Info("Advertising configuration UI over mDNS",
		zap.String("instance", ad.Instance),
		zap.Int("port", port),
	)
	return nil
}

// Stop withdraws the announcement
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
