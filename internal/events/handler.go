package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/pixeltube/basecamp/internal/health"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"github.com/pixeltube/basecamp/internal/store"
	"go.uber.org/zap"
)

// Reconnector restarts association with the last supplied credentials
type Reconnector interface {
	Reconnect() error
}

// Handler applies link events to the persistent stores. It is the only
// writer of the stored lease and the only success-path writer of the boot
// counter.
type Handler struct {
	config *store.Namespace
	health *health.Counter
	radio  Reconnector

	// observe is called after an event has been applied
	observe func(Event)
}

// NewHandler creates a handler over the config namespace and boot counter
func NewHandler(config *store.Namespace, counter *health.Counter, radio Reconnector) *Handler {
	return &Handler{config: config, health: counter, radio: radio}
}

// Observe registers fn to be called after each handled event
func (h *Handler) Observe(fn func(Event)) {
	h.observe = fn
}

// Handle applies one event. Calls must not overlap; Dispatcher serializes them.
func (h *Handler) Handle(ev Event) error {
	var err error

	switch e := ev.(type) {
	case AddressAcquired:
		err = h.addressAcquired(e)
	case LinkLost:
		err = h.linkLost(e)
	case Other:
		logging.Debug("Ignoring radio event", zap.String("event", e.Name))
	default:
		panic(fmt.Sprintf("events: unhandled event type %T", ev))
	}

	if h.observe != nil {
		h.observe(ev)
	}
	return err
}

func (h *Handler) addressAcquired(e AddressAcquired) error {
	logging.LogNetworkEvent("address-acquired",
		zap.String("address", e.Lease.Address.String()),
		zap.String("gateway", e.Lease.Gateway.String()),
		zap.String("mask", e.Lease.MaskString()),
	)

	// Any address assignment is a successful boot. An incomplete lease is
	// not stored but still resets the counter.
	var leaseErr error
	if e.Lease.Valid() {
		leaseErr = h.storeLease(e.Lease)
	} else {
		logging.Warn("Address acquired with incomplete lease, not storing it",
			zap.String("lease", e.Lease.String()))
	}

	// The config session ends before the health session begins so the two
	// stores are never open together.
	if err := h.health.Reset(); err != nil {
		return errors.Join(leaseErr, fmt.Errorf("failed to reset boot counter: %w", err))
	}
	return leaseErr
}

func (h *Handler) storeLease(lease netconfig.Lease) error {
	s, err := h.config.Begin(false)
	if err != nil {
		return fmt.Errorf("failed to open config store: %w", err)
	}
	if err := netconfig.WriteLease(s, lease); err != nil {
		_ = s.End()
		return fmt.Errorf("failed to store lease: %w", err)
	}
	if err := s.End(); err != nil {
		return fmt.Errorf("failed to flush lease: %w", err)
	}
	return nil
}

func (h *Handler) linkLost(e LinkLost) error {
	logging.LogNetworkEvent("link-lost", zap.String("reason", e.Reason))
	if err := h.radio.Reconnect(); err != nil {
		return fmt.Errorf("failed to request reconnection: %w", err)
	}
	return nil
}

// Dispatcher is the single consumer of a radio event stream.
type Dispatcher struct {
	handler *Handler
}

// NewDispatcher creates a dispatcher delivering to handler
func NewDispatcher(handler *Handler) *Dispatcher {
	return &Dispatcher{handler: handler}
}

// Run delivers events from src to the handler one at a time until ctx is
// done or src is closed. Handler errors are logged and do not stop delivery.
func (d *Dispatcher) Run(ctx context.Context, src <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				logging.Debug("Radio event stream closed")
				return
			}
			if err := d.handler.Handle(ev); err != nil {
				logging.Error("Failed to handle radio event",
					zap.String("event", ev.String()),
					zap.Error(err),
				)
			}
		}
	}
}
