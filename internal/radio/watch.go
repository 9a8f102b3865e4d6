package radio

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pixeltube/basecamp/internal/events"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"go.uber.org/zap"
)

// stateActivated is NM_DEVICE_STATE_ACTIVATED
const stateActivated = 100

const routeTable = "/proc/net/route"

// linkState is one observation of the client link.
type linkState struct {
	// connected is true when the client profile is active
	connected bool
	lease     netconfig.Lease
	// state is the raw NetworkManager device state
	state int
}

// transition returns the events implied by moving from prev to cur.
func transition(prev, cur linkState) []events.Event {
	switch {
	case cur.connected && cur.lease.Valid():
		if !prev.connected || !prev.lease.Valid() || prev.lease.String() != cur.lease.String() {
			return []events.Event{events.AddressAcquired{Lease: cur.lease}}
		}
	case prev.connected && !cur.connected:
		return []events.Event{events.LinkLost{Reason: fmt.Sprintf("device state %d", cur.state)}}
	case prev.state != cur.state:
		return []events.Event{events.Other{Name: fmt.Sprintf("device state %d", cur.state)}}
	}
	return nil
}

// Watch polls the interface and reports client link changes until ctx is
// done. The returned channel is closed when polling stops.
func (r *NMRadio) Watch(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 8)

	go func() {
		defer close(out)
		ticker := time.NewTicker(r.config.PollInterval)
		defer ticker.Stop()

		var prev linkState
		for {
			cur := r.observe()
			for _, ev := range transition(prev, cur) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			prev = cur

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

func (r *NMRadio) observe() linkState {
	state, conn, err := r.deviceState()
	if err != nil {
		logging.Debug("Failed to read device state", zap.Error(err))
		return linkState{}
	}

	cur := linkState{state: state, connected: state == stateActivated && conn == ClientProfile}
	if cur.connected {
		if lease, ok := r.CurrentLease(); ok {
			cur.lease = lease
		}
	}
	return cur
}

// CurrentLease returns the address, mask and default gateway currently
// assigned to the interface. Links without a default route report the
// gateway as 0.0.0.0.
func (r *NMRadio) CurrentLease() (netconfig.Lease, bool) {
	iface, err := net.InterfaceByName(r.config.Interface)
	if err != nil {
		return netconfig.Lease{}, false
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return netconfig.Lease{}, false
	}

	var routes io.Reader = strings.NewReader("")
	if f, err := os.Open(routeTable); err == nil {
		defer f.Close()
		routes = f
	} else {
		logging.Debug("Route table unavailable", zap.Error(err))
	}
	return leaseOf(addrs, routes, r.config.Interface)
}

// leaseOf builds the lease of iface from its addresses and a route table in
// the /proc/net/route format. Only the first IPv4 address is used.
func leaseOf(addrs []net.Addr, routes io.Reader, iface string) (netconfig.Lease, bool) {
	var lease netconfig.Lease
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			lease.Address = ipnet.IP.To4()
			lease.Mask = ipnet.Mask
			if len(lease.Mask) == net.IPv6len {
				lease.Mask = lease.Mask[12:]
			}
			break
		}
	}
	if lease.Address == nil {
		return netconfig.Lease{}, false
	}

	lease.Gateway = net.IPv4zero.To4()
	if gw, ok := defaultGateway(routes, iface); ok {
		lease.Gateway = gw
	}
	return lease, lease.Valid()
}

// defaultGateway finds the default route of iface in the /proc/net/route
// format, where addresses are little-endian hex.
func defaultGateway(rd io.Reader, iface string) (net.IP, bool) {
	sc := bufio.NewScanner(rd)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[0] != iface || fields[1] != "00000000" {
			continue
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			continue
		}
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, binary.LittleEndian.Uint32(raw))
		if ip.IsUnspecified() {
			continue
		}
		return ip, true
	}
	return nil, false
}
