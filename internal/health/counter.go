// Package health keeps the persistent count of consecutive unsuccessful boots.
//
// The counter lives in its own namespace, separate from the network
// configuration, so a configuration reset or a factory wipe of the
// configuration filesystem never loses it by accident.
package health

import (
	"github.com/pixeltube/basecamp/internal/store"
)

// KeyBootCounter is the storage key of the counter
const KeyBootCounter = "bootcounter"

// Counter reads and writes the boot counter through short store sessions.
type Counter struct {
	ns *store.Namespace
}

// NewCounter creates a counter over the health namespace
func NewCounter(ns *store.Namespace) *Counter {
	return &Counter{ns: ns}
}

// Namespace returns the underlying health namespace
func (c *Counter) Namespace() *store.Namespace {
	return c.ns
}

// Failures returns the stored number of consecutive unsuccessful boots
func (c *Counter) Failures() (uint, error) {
	s, err := c.ns.Begin(true)
	if err != nil {
		return 0, err
	}
	defer func() { _ = s.End() }()
	return s.Uint(KeyBootCounter, 0), nil
}

// Record stores n as the number of consecutive unsuccessful boots
func (c *Counter) Record(n uint) error {
	s, err := c.ns.Begin(false)
	if err != nil {
		return err
	}
	if err := s.PutUint(KeyBootCounter, n); err != nil {
		_ = s.End()
		return err
	}
	return s.End()
}

// Reset sets the counter to zero. It is the success signal of a boot.
func (c *Counter) Reset() error {
	return c.Record(0)
}

// Clear removes every key of the health namespace
func (c *Counter) Clear() error {
	s, err := c.ns.Begin(false)
	if err != nil {
		return err
	}
	if err := s.Clear(); err != nil {
		_ = s.End()
		return err
	}
	return s.End()
}
