package radio

import (
	"context"
	"net"
	"sync"

	"github.com/pixeltube/basecamp/internal/events"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"go.uber.org/zap"
)

// Simulated is an in-memory radio for dry runs on development machines. It
// records every call and reports the events a real link would produce.
type Simulated struct {
	mac    net.HardwareAddr
	apAddr net.IP

	mu     sync.Mutex
	calls  []string
	static *netconfig.Lease
	lease  *netconfig.Lease
	addrs  []net.IP
	events chan events.Event

	// DHCPLease is reported as acquired after Connect when no static lease
	// was requested. Nil leaves the link without an address.
	DHCPLease *netconfig.Lease
}

// NewSimulated creates a simulated radio with the given hardware address
func NewSimulated(mac net.HardwareAddr) *Simulated {
	return &Simulated{
		mac:    mac,
		apAddr: DefaultConfig().AccessPointAddr.IP,
		events: make(chan events.Event, 16),
	}
}

func (s *Simulated) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	logging.Debug("Simulated radio call", zap.String("call", call))
}

// Calls returns the calls made so far
func (s *Simulated) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// RequestStaticLease records the lease to report on the next Connect
func (s *Simulated) RequestStaticLease(lease netconfig.Lease) error {
	s.record("static " + lease.String())
	s.mu.Lock()
	s.static = &lease
	s.mu.Unlock()
	return nil
}

// SetHostname records the hostname
func (s *Simulated) SetHostname(name string) error {
	s.record("hostname " + name)
	return nil
}

// Connect reports the requested static lease, or DHCPLease, as acquired
func (s *Simulated) Connect(ssid, secret string) error {
	s.record("connect " + ssid)

	s.mu.Lock()
	lease := s.static
	if lease == nil {
		lease = s.DHCPLease
	}
	s.lease = lease
	if lease != nil {
		s.addrs = []net.IP{lease.Address}
	}
	s.mu.Unlock()

	if lease != nil {
		s.Inject(events.AddressAcquired{Lease: *lease})
	}
	return nil
}

// StartAccessPoint records the access point and assigns its address
func (s *Simulated) StartAccessPoint(ssid, secret string) error {
	mode := "open"
	if secret != "" {
		mode = "secured"
	}
	s.record("access-point " + ssid + " " + mode)

	s.mu.Lock()
	s.addrs = []net.IP{s.apAddr}
	s.mu.Unlock()
	return nil
}

// Reconnect reports the last lease as acquired again
func (s *Simulated) Reconnect() error {
	s.record("reconnect")

	s.mu.Lock()
	lease := s.lease
	s.mu.Unlock()

	if lease != nil {
		s.Inject(events.AddressAcquired{Lease: *lease})
	}
	return nil
}

// HardwareAddr returns the configured hardware address
func (s *Simulated) HardwareAddr() net.HardwareAddr {
	return s.mac
}

// AccessPointAddr returns the address of the device on its access point
func (s *Simulated) AccessPointAddr() net.IP {
	return s.apAddr
}

// Addrs returns the addresses assigned by the last Connect or StartAccessPoint
func (s *Simulated) Addrs() []net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]net.IP(nil), s.addrs...)
}

// Inject queues an event. It drops the event if the queue is full.
func (s *Simulated) Inject(ev events.Event) {
	select {
	case s.events <- ev:
	default:
		logging.Warn("Simulated radio event queue full, dropping event", zap.String("event", ev.String()))
	}
}

// Watch returns the injected events until ctx is done
func (s *Simulated) Watch(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
