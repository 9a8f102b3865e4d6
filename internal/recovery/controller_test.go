package recovery

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pixeltube/basecamp/internal/health"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"github.com/pixeltube/basecamp/internal/platform"
	"github.com/pixeltube/basecamp/internal/store"
)

type fixture struct {
	counter *health.Counter
	config  *store.Namespace
	ctrl    *Controller
}

func newFixture(t *testing.T, configured bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		counter: health.NewCounter(store.NewNamespace("health", filepath.Join(dir, "health.yaml"))),
		config:  store.NewNamespace("config", filepath.Join(dir, "config", "basecamp.yaml")),
	}
	f.ctrl = NewController(f.counter, f.config)

	s, err := f.config.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	_ = netconfig.SetConfigured(s, configured)
	_ = s.PutString(netconfig.KeyAccessPointSecret, "keepme99")
	if err := s.End(); err != nil {
		t.Fatal(err)
	}
	return f
}

// boot simulates one boot: load the config, evaluate.
func (f *fixture) boot(t *testing.T, cause platform.ResetCause) (Action, *netconfig.NetworkConfig) {
	t.Helper()
	cfg, err := netconfig.Load(f.config)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	action, err := f.ctrl.Evaluate(cause, cfg)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if err := store.Quiesced(f.config, f.counter.Namespace()); err != nil {
		t.Fatalf("sessions left open after Evaluate: %v", err)
	}
	return action, cfg
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		cause      platform.ResetCause
		failures   uint
		configured bool
		want       Decision
	}{
		{"software restart clears", platform.ResetSoftware, 3, true, Decision{Continue, 0}},
		{"watchdog clears", platform.ResetWatchdog, 2, false, Decision{Continue, 0}},
		{"unknown clears", platform.ResetUnknown, 1, true, Decision{Continue, 0}},
		{"first power-on", platform.ResetPowerOn, 0, true, Decision{Continue, 1}},
		{"third counted boot configured", platform.ResetButton, 2, true, Decision{Continue, 3}},
		{"fourth counted boot configured", platform.ResetPowerOn, 3, true, Decision{ResetNetworkConfigAndReboot, 0}},
		{"fourth counted boot unconfigured", platform.ResetPowerOn, 3, false, Decision{ResetNetworkConfigAndReboot, 0}},
		{"third counted boot unconfigured", platform.ResetButton, 2, false, Decision{FactoryResetAndReboot, 0}},
		{"second counted boot unconfigured", platform.ResetPowerOn, 1, false, Decision{Continue, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.cause, tt.failures, tt.configured); got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_NetworkResetOnFourthBoot(t *testing.T) {
	for _, cause := range []platform.ResetCause{platform.ResetPowerOn, platform.ResetButton} {
		t.Run(cause.String(), func(t *testing.T) {
			f := newFixture(t, true)

			for i := 1; i <= 3; i++ {
				action, _ := f.boot(t, cause)
				if action != Continue {
					t.Fatalf("boot %d action = %v, want continue", i, action)
				}
				if n, _ := f.counter.Failures(); n != uint(i) {
					t.Errorf("boot %d counter = %d, want %d", i, n, i)
				}
			}

			action, cfg := f.boot(t, cause)
			if action != ResetNetworkConfigAndReboot {
				t.Fatalf("boot 4 action = %v, want reset-network-config", action)
			}
			if cfg.IsConfigured {
				t.Error("in-memory config still configured")
			}

			stored, _ := netconfig.Load(f.config)
			if stored.IsConfigured {
				t.Error("stored config still configured")
			}
			if stored.APSecret != "keepme99" {
				t.Errorf("APSecret = %q, network reset must keep it", stored.APSecret)
			}
			if n, _ := f.counter.Failures(); n != 0 {
				t.Errorf("counter after reset = %d, want 0", n)
			}
		})
	}
}

func TestEvaluate_FactoryResetAfterNetworkReset(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 4; i++ {
		f.boot(t, platform.ResetPowerOn)
	}

	// The network reset reboot itself is a software restart
	if action, _ := f.boot(t, platform.ResetSoftware); action != Continue {
		t.Fatalf("software boot action = %v", action)
	}

	for i := 1; i <= 2; i++ {
		if action, _ := f.boot(t, platform.ResetPowerOn); action != Continue {
			t.Fatalf("unconfigured boot %d action = %v, want continue", i, action)
		}
	}
	if action, _ := f.boot(t, platform.ResetButton); action != FactoryResetAndReboot {
		t.Fatalf("unconfigured boot 3 action = %v, want factory-reset", action)
	}
	if n, _ := f.counter.Failures(); n != 0 {
		t.Errorf("counter after factory reset = %d, want 0", n)
	}
}

func TestEvaluate_ExternalCauseAlwaysClears(t *testing.T) {
	for _, cause := range []platform.ResetCause{platform.ResetSoftware, platform.ResetWatchdog, platform.ResetUnknown} {
		t.Run(cause.String(), func(t *testing.T) {
			f := newFixture(t, true)
			_ = f.counter.Record(3)

			action, _ := f.boot(t, cause)
			if action != Continue {
				t.Errorf("action = %v, want continue", action)
			}
			if n, _ := f.counter.Failures(); n != 0 {
				t.Errorf("counter = %d, want 0", n)
			}
		})
	}
}

func TestEvaluate_SuccessBreaksTheStreak(t *testing.T) {
	f := newFixture(t, true)

	for i := 0; i < 10; i++ {
		for j := 0; j < 3; j++ {
			if action, _ := f.boot(t, platform.ResetPowerOn); action != Continue {
				t.Fatalf("round %d boot %d action = %v", i, j, action)
			}
		}
		// address acquired
		_ = f.counter.Reset()
	}
}

func TestAction_String(t *testing.T) {
	if Continue.RequiresRestart() {
		t.Error("Continue.RequiresRestart() = true")
	}
	if !FactoryResetAndReboot.RequiresRestart() || !ResetNetworkConfigAndReboot.RequiresRestart() {
		t.Error("reset actions must require a restart")
	}
	if Action(9).String() != "Action(9)" {
		t.Errorf("String() = %s", Action(9).String())
	}
}

func TestResetNetwork(t *testing.T) {
	f := newFixture(t, true)
	_ = f.counter.Record(2)

	if err := f.ctrl.ResetNetwork(); err != nil {
		t.Fatalf("ResetNetwork() error = %v", err)
	}

	stored, _ := netconfig.Load(f.config)
	if stored.IsConfigured {
		t.Error("stored config still configured")
	}
	if stored.APSecret != "keepme99" {
		t.Errorf("APSecret = %q", stored.APSecret)
	}
	if n, _ := f.counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
}

func TestFactoryReset(t *testing.T) {
	f := newFixture(t, true)
	_ = f.counter.Record(2)
	root := filepath.Dir(f.config.Path())

	if err := f.ctrl.FactoryReset(root); err != nil {
		t.Fatalf("FactoryReset() error = %v", err)
	}

	stored, _ := netconfig.Load(f.config)
	if stored.IsConfigured || stored.APSecret != "" {
		t.Errorf("config survived the factory reset: %+v", stored)
	}
	if n, _ := f.counter.Failures(); n != 0 {
		t.Errorf("counter = %d, want 0", n)
	}
}

func TestFactoryReset_OpenSession(t *testing.T) {
	f := newFixture(t, true)
	s, err := f.config.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.End() }()

	if err := f.ctrl.FactoryReset(filepath.Dir(f.config.Path())); !errors.Is(err, store.ErrSessionsOpen) {
		t.Errorf("FactoryReset() error = %v, want ErrSessionsOpen", err)
	}
}
