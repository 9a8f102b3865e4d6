package events

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pixeltube/basecamp/internal/health"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"github.com/pixeltube/basecamp/internal/store"
)

type fakeReconnector struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeReconnector) Reconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *fakeReconnector) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newHandler(t *testing.T) (*Handler, *store.Namespace, *health.Counter, *fakeReconnector) {
	t.Helper()
	dir := t.TempDir()
	config := store.NewNamespace("config", filepath.Join(dir, "config.yaml"))
	counter := health.NewCounter(store.NewNamespace("health", filepath.Join(dir, "health.yaml")))
	radio := &fakeReconnector{}
	return NewHandler(config, counter, radio), config, counter, radio
}

func mustLease(t *testing.T, a, g, m string) netconfig.Lease {
	t.Helper()
	lease, ok := netconfig.ParseLease(a, g, m)
	if !ok {
		t.Fatalf("ParseLease(%s, %s, %s) failed", a, g, m)
	}
	return lease
}

func TestHandle_AddressAcquired(t *testing.T) {
	h, config, counter, _ := newHandler(t)
	_ = counter.Record(3)

	lease := mustLease(t, "10.0.0.5", "10.0.0.1", "255.255.255.0")
	if err := h.Handle(AddressAcquired{Lease: lease}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if n, _ := counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
	cfg, _ := netconfig.Load(config)
	if cfg.LastLease == nil || cfg.LastLease.String() != lease.String() {
		t.Errorf("stored lease = %v, want %v", cfg.LastLease, lease)
	}
	if err := store.Quiesced(config, counter.Namespace()); err != nil {
		t.Errorf("sessions left open: %v", err)
	}
}

func TestHandle_AddressAcquiredIdempotent(t *testing.T) {
	h, config, counter, _ := newHandler(t)
	lease := mustLease(t, "192.168.4.20", "192.168.4.1", "255.255.252.0")

	_ = h.Handle(AddressAcquired{Lease: lease})
	first, _ := netconfig.Load(config)
	_ = h.Handle(AddressAcquired{Lease: lease})
	second, _ := netconfig.Load(config)

	if first.LastLease.String() != second.LastLease.String() {
		t.Errorf("lease changed: %v then %v", first.LastLease, second.LastLease)
	}
	if n, _ := counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
}

func TestHandle_AddressAcquiredOverwritesLease(t *testing.T) {
	h, config, _, _ := newHandler(t)

	_ = h.Handle(AddressAcquired{Lease: mustLease(t, "10.0.0.5", "10.0.0.1", "255.255.255.0")})
	_ = h.Handle(AddressAcquired{Lease: mustLease(t, "172.16.1.9", "172.16.0.1", "255.255.0.0")})

	cfg, _ := netconfig.Load(config)
	if got := cfg.LastLease.String(); got != "172.16.1.9/16 via 172.16.0.1" {
		t.Errorf("stored lease = %s", got)
	}
}

func TestHandle_AddressAcquiredKeepsCredentials(t *testing.T) {
	h, config, _, _ := newHandler(t)
	s, _ := config.Begin(false)
	_ = netconfig.WriteSubmission(s, netconfig.Submission{SSID: "home", Secret: "hunter22", PixelTubeNumber: 4})
	_ = s.End()

	_ = h.Handle(AddressAcquired{Lease: mustLease(t, "10.0.0.5", "10.0.0.1", "255.255.255.0")})

	cfg, _ := netconfig.Load(config)
	if !cfg.IsConfigured || cfg.SSID != "home" || cfg.PixelTubeNumber != 4 {
		t.Errorf("config = %+v, credentials lost", cfg)
	}
}

func TestHandle_IncompleteLease(t *testing.T) {
	h, config, counter, _ := newHandler(t)
	_ = counter.Record(3)

	if err := h.Handle(AddressAcquired{}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if n, _ := counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
	if cfg, _ := netconfig.Load(config); cfg.LastLease != nil {
		t.Errorf("stored lease = %v, want none", cfg.LastLease)
	}
}

func TestHandle_AddressAcquiredWithoutGateway(t *testing.T) {
	h, config, counter, _ := newHandler(t)
	_ = counter.Record(3)

	lease := mustLease(t, "192.168.0.20", "0.0.0.0", "255.255.255.0")
	if err := h.Handle(AddressAcquired{Lease: lease}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if n, _ := counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
	cfg, _ := netconfig.Load(config)
	if cfg.LastLease == nil || cfg.LastLease.String() != "192.168.0.20/24 via 0.0.0.0" {
		t.Errorf("stored lease = %v", cfg.LastLease)
	}
}

func TestHandle_LinkLost(t *testing.T) {
	h, _, counter, radio := newHandler(t)
	_ = counter.Record(1)

	for i := 0; i < 5; i++ {
		if err := h.Handle(LinkLost{Reason: "beacon timeout"}); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	if radio.count() != 5 {
		t.Errorf("reconnects = %d, want 5", radio.count())
	}
	if n, _ := counter.Failures(); n != 1 {
		t.Errorf("counter = %d, link loss must not change it", n)
	}
}

func TestHandle_LinkLostReconnectError(t *testing.T) {
	h, _, _, radio := newHandler(t)
	radio.err = errors.New("radio busy")

	if err := h.Handle(LinkLost{}); err == nil {
		t.Error("Handle() error = nil, want reconnect error")
	}
}

func TestHandle_Other(t *testing.T) {
	h, config, counter, radio := newHandler(t)
	_ = counter.Record(2)

	var observed []Event
	h.Observe(func(ev Event) { observed = append(observed, ev) })

	if err := h.Handle(Other{Name: "scan-done"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if n, _ := counter.Failures(); n != 2 || radio.count() != 0 {
		t.Errorf("Other changed state: counter=%d reconnects=%d", n, radio.count())
	}
	if cfg, _ := netconfig.Load(config); cfg.LastLease != nil {
		t.Error("Other stored a lease")
	}
	if len(observed) != 1 {
		t.Errorf("observed %d events, want 1", len(observed))
	}
}

func TestEventString(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{LinkLost{}, "link-lost"},
		{LinkLost{Reason: "deauth"}, "link-lost (deauth)"},
		{Other{Name: "scan-done"}, "other scan-done"},
		{AddressAcquired{Lease: mustLease(t, "10.0.0.5", "10.0.0.1", "255.255.255.0")}, "address-acquired 10.0.0.5/24 via 10.0.0.1"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDispatcher_Run(t *testing.T) {
	h, config, counter, radio := newHandler(t)
	_ = counter.Record(3)

	src := make(chan Event)
	done := make(chan struct{})
	go func() {
		NewDispatcher(h).Run(context.Background(), src)
		close(done)
	}()

	src <- LinkLost{}
	src <- AddressAcquired{Lease: mustLease(t, "10.0.0.5", "10.0.0.1", "255.255.255.0")}
	src <- Other{Name: "noise"}
	close(src)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after the stream closed")
	}

	if radio.count() != 1 {
		t.Errorf("reconnects = %d, want 1", radio.count())
	}
	if n, _ := counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
	if cfg, _ := netconfig.Load(config); cfg.LastLease == nil {
		t.Error("lease not stored")
	}
}

func TestDispatcher_RunCancelled(t *testing.T) {
	h, _, _, _ := newHandler(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewDispatcher(h).Run(ctx, make(chan Event))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() ignored cancellation")
	}
}
