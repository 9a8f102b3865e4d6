package events

import (
	"fmt"

	"github.com/pixeltube/basecamp/internal/netconfig"
)

// Event is a link-layer notification from the radio. The set of variants is
// closed: AddressAcquired, LinkLost and Other.
type Event interface {
	fmt.Stringer
	event()
}

// AddressAcquired reports a completed DHCP or static address assignment.
type AddressAcquired struct {
	Lease netconfig.Lease
}

// LinkLost reports that the association with the network dropped.
type LinkLost struct {
	Reason string
}

// Other carries any radio notification the handler does not act on.
type Other struct {
	Name string
}

func (AddressAcquired) event() {}
func (LinkLost) event()        {}
func (Other) event()           {}

func (e AddressAcquired) String() string {
	return "address-acquired " + e.Lease.String()
}

func (e LinkLost) String() string {
	if e.Reason == "" {
		return "link-lost"
	}
	return "link-lost (" + e.Reason + ")"
}

func (e Other) String() string {
	return "other " + e.Name
}
