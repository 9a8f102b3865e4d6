package provision

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixeltube/basecamp/internal/config"
	"github.com/pixeltube/basecamp/internal/health"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"github.com/pixeltube/basecamp/internal/platform"
	"github.com/pixeltube/basecamp/internal/radio"
	"github.com/pixeltube/basecamp/internal/store"
	"github.com/pixeltube/basecamp/internal/wifi"
)

type recordingRestarter struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingRestarter) Restart(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	return nil
}

func (r *recordingRestarter) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

type fixture struct {
	settings  *config.Settings
	config    *store.Namespace
	counter   *health.Counter
	radio     *radio.Simulated
	restarter *recordingRestarter
	cause     platform.ResetCause
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	settings := config.NewSettings()
	settings.ConfigDir = filepath.Join(dir, "config")
	settings.StateDir = filepath.Join(dir, "state")
	settings.HTTPAddr = "127.0.0.1:0"
	settings.DNSAddr = "127.0.0.1:0"

	mac, _ := net.ParseMAC("A4:CF:12:E8:0B:3C")
	return &fixture{
		settings:  settings,
		config:    store.NewNamespace("config", settings.ConfigStorePath()),
		counter:   health.NewCounter(store.NewNamespace("health", settings.HealthStorePath())),
		radio:     radio.NewSimulated(mac),
		restarter: &recordingRestarter{},
		cause:     platform.ResetPowerOn,
	}
}

func (f *fixture) write(t *testing.T, values map[string]string) {
	t.Helper()
	s, err := f.config.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range values {
		if err := s.PutString(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.End(); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) configure(t *testing.T) {
	f.write(t, map[string]string{
		netconfig.KeyWifiConfigured:    "True",
		netconfig.KeyWifiEssid:         "home",
		netconfig.KeyWifiPassword:      "hunter22",
		netconfig.KeyPixelTubeNumber:   "3",
		netconfig.KeyAccessPointSecret: "keepme99",
	})
}

func (f *fixture) controller(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(Options{
		Settings:   f.settings,
		Config:     f.config,
		Health:     f.counter,
		Radio:      f.radio,
		ResetCause: platform.StaticResetCause(f.cause),
		Restarter:  f.restarter,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

func (f *fixture) stored(t *testing.T) *netconfig.NetworkConfig {
	t.Helper()
	cfg, err := netconfig.Load(f.config)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestNewController_Requirements(t *testing.T) {
	if _, err := NewController(Options{}); err == nil {
		t.Error("NewController() without stores accepted")
	}

	f := newFixture(t)
	_, err := NewController(Options{Config: f.config, Health: f.counter, Radio: f.radio})
	if err == nil {
		t.Error("NewController() without reset cause and restarter accepted")
	}
}

func TestStart_UnconfiguredOpensSecuredAccessPoint(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t)

	if !c.Start("") {
		t.Fatal("Start() = false")
	}
	if c.Mode() != wifi.AccessPoint {
		t.Fatalf("Mode() = %v, want access-point", c.Mode())
	}

	secret := f.stored(t).APSecret
	if len(secret) != wifi.DefaultSecretLength {
		t.Errorf("generated secret %q has length %d", secret, len(secret))
	}
	if c.SetupModeWifiSecret() != secret {
		t.Errorf("SetupModeWifiSecret() = %q, stored %q", c.SetupModeWifiSecret(), secret)
	}
	if !c.IsSetupModeWifiEncrypted() {
		t.Error("IsSetupModeWifiEncrypted() = false")
	}
	if c.SetupModeWifiName() != "PixelTube_a4cf12e80b3c" {
		t.Errorf("SetupModeWifiName() = %q", c.SetupModeWifiName())
	}

	calls := f.radio.Calls()
	if len(calls) != 1 || calls[0] != "access-point PixelTube_a4cf12e80b3c secured" {
		t.Errorf("radio calls = %v", calls)
	}
	if c.web == nil || c.dns == nil {
		t.Errorf("config UI armed = %v, captive DNS armed = %v, want both", c.web != nil, c.dns != nil)
	}
	if c.Degraded() {
		t.Errorf("Degraded() = true: %v", c.DegradedReasons())
	}
	if err := store.Quiesced(f.config, f.counter.Namespace()); err != nil {
		t.Error(err)
	}
}

func TestStart_SecretOverride(t *testing.T) {
	tests := []struct {
		name     string
		override string
		verbatim bool
	}{
		{"too short is replaced by a generated secret", "12345", false},
		{"long enough is used verbatim", "1234567890", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.settings.SetupEncryption = config.EncryptionNone
			c := f.controller(t)

			if !c.Start(tt.override) {
				t.Fatal("Start() = false")
			}

			secret := f.stored(t).APSecret
			if tt.verbatim {
				if secret != tt.override {
					t.Errorf("stored secret = %q, want %q", secret, tt.override)
				}
				if !c.IsSetupModeWifiEncrypted() {
					t.Error("a valid override must force an encrypted access point")
				}
				return
			}

			if secret == tt.override || len(secret) != wifi.DefaultSecretLength {
				t.Errorf("stored secret = %q, want a generated %d character secret", secret, wifi.DefaultSecretLength)
			}
			if c.IsSetupModeWifiEncrypted() {
				t.Error("rejected override must not change the encryption policy")
			}
		})
	}
}

func TestStart_OverrideReplacesStoredSecret(t *testing.T) {
	f := newFixture(t)
	f.write(t, map[string]string{netconfig.KeyAccessPointSecret: "keepme99"})

	f.controller(t).Start("newsecret1")
	if got := f.stored(t).APSecret; got != "newsecret1" {
		t.Errorf("stored secret = %q", got)
	}
}

func TestStart_KeepsStoredSecret(t *testing.T) {
	f := newFixture(t)
	f.write(t, map[string]string{netconfig.KeyAccessPointSecret: "keepme99"})

	c := f.controller(t)
	c.Start("")
	if got := f.stored(t).APSecret; got != "keepme99" {
		t.Errorf("stored secret = %q, an existing secret must not be regenerated", got)
	}
	if calls := f.radio.Calls(); calls[0] != "access-point PixelTube_a4cf12e80b3c secured" {
		t.Errorf("radio calls = %v", calls)
	}
}

func TestStart_ConfiguredJoinsNetwork(t *testing.T) {
	tests := []struct {
		name   string
		policy config.UIPolicy
		wantUI bool
	}{
		{"ui only in access point mode", config.UIAccessPoint, false},
		{"ui always", config.UIAlways, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.settings.ConfigUI = tt.policy
			f.configure(t)
			f.write(t, map[string]string{
				netconfig.KeyIPAddress:  "10.0.0.5",
				netconfig.KeyGatewayIP:  "10.0.0.1",
				netconfig.KeySubnetMask: "255.255.255.0",
			})

			c := f.controller(t)
			if !c.Start("") {
				t.Fatal("Start() = false")
			}
			if c.Mode() != wifi.Client {
				t.Fatalf("Mode() = %v, want client", c.Mode())
			}
			if c.Hostname() != "pixel-tube-3" {
				t.Errorf("Hostname() = %q", c.Hostname())
			}

			want := []string{"static 10.0.0.5/24 via 10.0.0.1", "hostname pixel-tube-3", "connect home"}
			if got := f.radio.Calls(); strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("radio calls = %v, want %v", got, want)
			}
			if (c.web != nil) != tt.wantUI {
				t.Errorf("config UI armed = %v, want %v", c.web != nil, tt.wantUI)
			}
			if c.dns != nil {
				t.Error("captive DNS armed on a configured device")
			}
		})
	}
}

func TestStart_CorruptConfigIsReset(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(f.settings.ConfigDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.config.Path(), []byte("- not\n- a map\n"), 0600); err != nil {
		t.Fatal(err)
	}

	c := f.controller(t)
	if !c.Start("") {
		t.Fatal("Start() = false, corruption must not prevent boot")
	}
	if !c.Degraded() {
		t.Error("Degraded() = false after resetting a corrupt store")
	}
	if c.Mode() != wifi.AccessPoint {
		t.Errorf("Mode() = %v, want access-point", c.Mode())
	}
	if cfg := f.stored(t); cfg.IsConfigured || cfg.APSecret == "" {
		t.Errorf("stored config after reset = %+v", cfg)
	}
}

func TestStart_NetworkResetRestarts(t *testing.T) {
	f := newFixture(t)
	f.configure(t)
	if err := f.counter.Record(3); err != nil {
		t.Fatal(err)
	}

	c := f.controller(t)
	if c.Start("") {
		t.Fatal("Start() = true, want false after a recovery restart")
	}

	if got := f.restarter.calls(); len(got) != 1 || got[0] != "reset-network-config" {
		t.Errorf("restarts = %v", got)
	}
	cfg := f.stored(t)
	if cfg.IsConfigured {
		t.Error("network config still marked configured")
	}
	if cfg.APSecret != "keepme99" {
		t.Errorf("APSecret = %q, a network reset keeps it", cfg.APSecret)
	}
	if calls := f.radio.Calls(); len(calls) != 0 {
		t.Errorf("radio started before the restart: %v", calls)
	}
}

func TestStart_FactoryResetRestarts(t *testing.T) {
	f := newFixture(t)
	f.cause = platform.ResetButton
	f.write(t, map[string]string{netconfig.KeyAccessPointSecret: "keepme99"})
	if err := f.counter.Record(2); err != nil {
		t.Fatal(err)
	}

	if f.controller(t).Start("") {
		t.Fatal("Start() = true, want false after a recovery restart")
	}

	if got := f.restarter.calls(); len(got) != 1 || got[0] != "factory-reset" {
		t.Errorf("restarts = %v", got)
	}
	if _, err := os.Stat(f.config.Path()); !os.IsNotExist(err) {
		t.Errorf("config store survived the factory reset: %v", err)
	}
	if n, _ := f.counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
}

func TestStart_ExternalResetDoesNotCount(t *testing.T) {
	f := newFixture(t)
	f.cause = platform.ResetSoftware
	f.configure(t)
	_ = f.counter.Record(3)

	if !f.controller(t).Start("") {
		t.Fatal("Start() = false")
	}
	if n, _ := f.counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
	if len(f.restarter.calls()) != 0 {
		t.Error("restarted after a software reset")
	}
}

func TestRun_AddressAcquiredMarksBootSuccessful(t *testing.T) {
	f := newFixture(t)
	f.configure(t)
	lease, _ := netconfig.ParseLease("10.0.0.7", "10.0.0.1", "255.255.255.0")
	f.radio.DHCPLease = &lease

	c := f.controller(t)
	if !c.Start("") {
		t.Fatal("Start() = false")
	}
	if n, _ := f.counter.Failures(); n != 1 {
		t.Fatalf("counter after power-on boot = %d, want 1", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, _ := f.counter.Failures()
		if n == 0 && c.Status().LastEvent != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("counter = %d after address acquired, want 0", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got := f.stored(t).LastLease; got == nil || got.String() != "10.0.0.7/24 via 10.0.0.1" {
		t.Errorf("stored lease = %v", got)
	}
	if got := c.Status().LastEvent; got != "address-acquired 10.0.0.7/24 via 10.0.0.1" {
		t.Errorf("LastEvent = %q", got)
	}
}

func TestRun_NotStarted(t *testing.T) {
	f := newFixture(t)
	err := f.controller(t).Run(context.Background())
	if err == nil {
		t.Error("Run() before Start succeeded")
	}
}

func TestSystemInfo(t *testing.T) {
	f := newFixture(t)
	f.write(t, map[string]string{netconfig.KeyAccessPointSecret: "keepme99"})
	c := f.controller(t)
	c.Start("")

	info := c.SystemInfo()
	for _, want := range []string{
		"Unconfigured Pixel Tube (access-point mode)",
		"Hostname: pixel-tube-unconfigured",
		"MAC: a4:cf:12:e8:0b:3c",
		"Hardware MAC: a4cf12e80b3c",
		"Addresses: 192.168.4.1",
		"Access point: PixelTube_a4cf12e80b3c",
		"AP password: keepme99",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("SystemInfo() missing %q:\n%s", want, info)
		}
	}
}

func TestSystemInfo_BeforeStart(t *testing.T) {
	f := newFixture(t)
	f.configure(t)
	c := f.controller(t)

	info := c.SystemInfo()
	if !strings.Contains(info, "Pixel Tube 3 (stored configuration)") || !strings.Contains(info, "Network: home") {
		t.Errorf("SystemInfo() = %s", info)
	}
	if len(f.radio.Calls()) != 0 {
		t.Error("SystemInfo() touched the radio state")
	}
	if n, _ := f.counter.Failures(); n != 0 {
		t.Error("SystemInfo() evaluated boot recovery")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t)
	c.Start("")

	st := c.Status()
	if st.Mode != "access-point" || st.Configured {
		t.Errorf("Status() mode = %q configured = %v", st.Mode, st.Configured)
	}
	if st.AccessPointName != "PixelTube_a4cf12e80b3c" || !st.Encrypted {
		t.Errorf("Status() access point = %q encrypted = %v", st.AccessPointName, st.Encrypted)
	}
	if st.Hostname != "pixel-tube-unconfigured" || st.DisplayName != "Unconfigured Pixel Tube" {
		t.Errorf("Status() names = %q %q", st.Hostname, st.DisplayName)
	}
	if len(st.Addresses) != 1 || st.Addresses[0] != "192.168.4.1" {
		t.Errorf("Status() addresses = %v", st.Addresses)
	}
}

type failingResetCause struct{}

func (failingResetCause) ResetCause() (platform.ResetCause, error) {
	return platform.ResetUnknown, errors.New("marker unreadable")
}

func TestStart_UnknownResetCauseIsDegraded(t *testing.T) {
	f := newFixture(t)
	c, err := NewController(Options{
		Settings:   f.settings,
		Config:     f.config,
		Health:     f.counter,
		Radio:      f.radio,
		ResetCause: failingResetCause{},
		Restarter:  f.restarter,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !c.Start("") {
		t.Fatal("Start() = false")
	}
	if reasons := c.DegradedReasons(); len(reasons) != 1 || reasons[0] != "reset cause unavailable" {
		t.Errorf("DegradedReasons() = %v", reasons)
	}
}

func TestPortOf(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{":80", 80},
		{"127.0.0.1:8080", 8080},
		{"bogus", 80},
		{":0", 80},
	}
	for _, tt := range tests {
		if got := portOf(tt.addr); got != tt.want {
			t.Errorf("portOf(%q) = %d, want %d", tt.addr, got, tt.want)
		}
	}
}
