package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pixeltube/basecamp/internal/captive"
	"github.com/pixeltube/basecamp/internal/config"
	"github.com/pixeltube/basecamp/internal/discovery"
	"github.com/pixeltube/basecamp/internal/events"
	"github.com/pixeltube/basecamp/internal/health"
	"github.com/pixeltube/basecamp/internal/logging"
	"github.com/pixeltube/basecamp/internal/netconfig"
	"github.com/pixeltube/basecamp/internal/platform"
	"github.com/pixeltube/basecamp/internal/recovery"
	"github.com/pixeltube/basecamp/internal/store"
	"github.com/pixeltube/basecamp/internal/version"
	"github.com/pixeltube/basecamp/internal/webui"
	"github.com/pixeltube/basecamp/internal/wifi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Radio is the Wi-Fi driver the controller runs on. radio.NMRadio and
// radio.Simulated implement it.
type Radio interface {
	wifi.Radio
	events.Reconnector

	// AccessPointAddr is the address of the device on its setup network
	AccessPointAddr() net.IP
	// Addrs returns the addresses currently assigned to the interface
	Addrs() []net.IP
	// Watch reports link events until ctx is done
	Watch(ctx context.Context) <-chan events.Event
}

// currentAddr is implemented by radios that can tell the MAC in use apart
// from the factory one.
type currentAddr interface {
	CurrentHardwareAddr() net.HardwareAddr
}

// Options configures a Controller.
type Options struct {
	// Settings defaults to config.NewSettings()
	Settings *config.Settings

	Config *store.Namespace
	Health *health.Counter
	Radio  Radio

	ResetCause platform.ResetCauseSource
	Restarter  platform.Restarter

	// Console receives the system info panel at boot; nil prints nothing
	Console io.Writer

	// Advertiser announces the configuration UI in client mode; nil disables it
	Advertiser *discovery.Advertiser
}

// Controller runs the boot sequence of the device and owns the services
// started by it.
type Controller struct {
	opts     Options
	settings *config.Settings

	// encrypt is the effective setup encryption policy
	encrypt bool

	recovery *recovery.Controller
	selector *wifi.Selector
	handler  *events.Handler
	web      *webui.Server
	dns      *captive.Responder

	// restarter waits for the stores to drain before restarting
	restarter platform.Restarter

	mu        sync.Mutex
	started   bool
	cfg       *netconfig.NetworkConfig
	hostname  string
	mode      wifi.Mode
	degraded  []string
	lastEvent string
}

// NewController creates a controller. Nothing is read or started until Start.
func NewController(opts Options) (*Controller, error) {
	if opts.Config == nil || opts.Health == nil || opts.Radio == nil {
		return nil, errors.New("provisioning needs a config store, a health counter and a radio")
	}
	if opts.ResetCause == nil || opts.Restarter == nil {
		return nil, errors.New("provisioning needs a reset cause source and a restarter")
	}
	if opts.Settings == nil {
		opts.Settings = config.NewSettings()
	}

	return &Controller{
		opts:      opts,
		settings:  opts.Settings,
		encrypt:   opts.Settings.SetupEncryption == config.EncryptionSecured,
		recovery:  recovery.NewController(opts.Health, opts.Config),
		selector:  wifi.NewSelector(opts.Radio, opts.Settings.APNamePrefix, false),
		restarter: platform.NewGuardedRestarter(opts.Restarter, opts.Config, opts.Health.Namespace()),
	}, nil
}

// Start runs the boot sequence: recovery, access point secret, network mode,
// configuration UI and captive DNS. The services are not served until Run.
//
// override replaces the stored access point secret when it is at least
// wifi.MinSecretLength long, and forces an encrypted access point. Shorter
// overrides are ignored.
//
// Start returns false only when recovery restarted the device, which on real
// hardware does not return at all. Faults it recovered from are reported by
// Degraded.
func (c *Controller) Start(override string) bool {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		logging.Warn("Provisioning already started")
		return true
	}
	c.started = true
	c.mu.Unlock()

	override = c.checkOverride(override)
	if override != "" {
		c.encrypt = true
	}

	cfg := c.loadConfig()
	c.mu.Lock()
	c.cfg = cfg
	c.hostname = cfg.Hostname(c.settings.HostnamePrefix)
	c.mu.Unlock()

	if action := c.evaluate(cfg); action.RequiresRestart() {
		c.recover(action)
		return false
	}

	c.ensureSecret(cfg, override)

	c.selector = wifi.NewSelector(c.opts.Radio, c.settings.APNamePrefix, c.encrypt)
	mode := c.selector.Begin(cfg, c.hostname)
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()

	c.handler = events.NewHandler(c.opts.Config, c.opts.Health, c.opts.Radio)
	c.handler.Observe(c.observe)

	if c.exposeUI(mode) {
		c.startUI(cfg)
	}

	logging.Info("Provisioning started",
		zap.String("mode", mode.String()),
		zap.String("hostname", c.hostname),
		zap.Bool("configured", cfg.IsConfigured),
		zap.Bool("config_ui", c.web != nil),
		zap.Bool("captive_dns", c.dns != nil),
		zap.Bool("degraded", c.Degraded()),
	)

	if c.opts.Console != nil {
		fmt.Fprintln(c.opts.Console, c.Panel().Render())
	}
	return true
}

func (c *Controller) checkOverride(secret string) string {
	if secret == "" {
		return ""
	}
	if err := wifi.ValidateSecret(secret); err != nil {
		logging.Warn("Access point secret override rejected, keeping stored or generated secret", zap.Error(err))
		return ""
	}
	logging.Info("Access point secret override accepted, setup network will be encrypted")
	return secret
}

// loadConfig reads the configuration store. An unreadable store is reset so
// that corruption never prevents boot.
func (c *Controller) loadConfig() *netconfig.NetworkConfig {
	cfg, err := netconfig.Load(c.opts.Config)
	if err == nil {
		return cfg
	}

	logging.Error("Configuration store unreadable, resetting to defaults",
		zap.String("path", c.opts.Config.Path()),
		zap.Error(err),
	)
	c.degrade("configuration store was reset to defaults")
	if err := c.opts.Config.Reset(); err != nil {
		logging.Error("Failed to reset configuration store", zap.Error(err))
		c.degrade("configuration store could not be reset")
	}
	return &netconfig.NetworkConfig{}
}

func (c *Controller) evaluate(cfg *netconfig.NetworkConfig) recovery.Action {
	cause, err := c.opts.ResetCause.ResetCause()
	if err != nil {
		logging.Warn("Reset cause unavailable", zap.Error(err))
		c.degrade("reset cause unavailable")
		cause = platform.ResetUnknown
	}

	action, err := c.recovery.Evaluate(cause, cfg)
	if err != nil {
		logging.Error("Boot recovery could not update its stores", zap.Error(err))
		c.degrade("boot counter could not be updated")
	}
	return action
}

// recover performs the destructive step of action and restarts the device.
// The restart is refused while a store session is open.
func (c *Controller) recover(action recovery.Action) {
	if action == recovery.FactoryResetAndReboot {
		logging.Warn("Formatting configuration storage", zap.String("dir", c.settings.ConfigDir))
		if err := c.recovery.FactoryReset(c.settings.ConfigDir); err != nil {
			logging.Error("Factory reset failed", zap.Error(err))
		}
	}

	if err := c.restarter.Restart(action.String()); err != nil {
		logging.Error("Recovery restart failed", zap.String("action", action.String()), zap.Error(err))
		c.degrade("recovery restart failed")
	}
}

// ensureSecret makes sure an access point secret is stored. A valid override
// wins over the stored one; otherwise a secret is generated only if none is
// stored.
func (c *Controller) ensureSecret(cfg *netconfig.NetworkConfig, override string) {
	secret := cfg.APSecret
	switch {
	case override != "":
		secret = override
	case secret == "":
		generated, err := wifi.GenerateSecret(wifi.DefaultSecretLength)
		if err != nil {
			logging.Error("Failed to generate access point secret", zap.Error(err))
			c.degrade("access point secret could not be generated")
			return
		}
		logging.Info("Generated access point secret")
		secret = generated
	}

	if secret == cfg.APSecret {
		return
	}
	cfg.APSecret = secret

	s, err := c.opts.Config.Begin(false)
	if err == nil {
		err = s.PutString(netconfig.KeyAccessPointSecret, secret)
		if endErr := s.End(); err == nil {
			err = endErr
		}
	}
	if err != nil {
		logging.Error("Failed to store access point secret", zap.Error(err))
		c.degrade("access point secret not persisted")
	}
}

func (c *Controller) exposeUI(mode wifi.Mode) bool {
	return c.settings.ConfigUI == config.UIAlways || mode == wifi.AccessPoint
}

func (c *Controller) startUI(cfg *netconfig.NetworkConfig) {
	portal := ""
	if !cfg.IsConfigured {
		portal = c.opts.Radio.AccessPointAddr().String()
	}

	web, err := webui.New(webui.Options{
		Addr:         c.settings.HTTPAddr,
		Config:       c.opts.Config,
		Restarter:    c.restarter,
		RestartDelay: c.settings.RestartDelay,
		Status:       c.Status,
		Label:        c.settings.DeviceLabel,
		PortalHost:   portal,
	})
	if err != nil {
		logging.Error("Failed to create configuration UI", zap.Error(err))
		c.degrade("configuration UI unavailable")
		return
	}
	c.web = web

	if !cfg.IsConfigured {
		c.dns = captive.NewResponder(c.settings.DNSAddr, c.opts.Radio.AccessPointAddr())
	}
}

// Run serves the link event dispatcher and the services armed by Start until
// ctx is done. A failing service is logged and marks the start degraded; it
// does not stop the others.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	started := c.started && c.handler != nil
	c.mu.Unlock()
	if !started {
		return errors.New("provisioning has not started")
	}

	g, ctx := errgroup.WithContext(ctx)

	src := c.opts.Radio.Watch(ctx)
	dispatcher := events.NewDispatcher(c.handler)
	g.Go(func() error {
		dispatcher.Run(ctx, src)
		return nil
	})

	if c.web != nil {
		g.Go(func() error {
			if err := c.web.Run(ctx); err != nil {
				logging.Error("Configuration UI stopped", zap.Error(err))
				c.degrade("configuration UI stopped")
			}
			return nil
		})
	}

	if c.dns != nil {
		g.Go(func() error {
			if err := c.dns.Run(ctx); err != nil {
				logging.Error("Captive DNS stopped", zap.Error(err))
				c.degrade("captive DNS stopped")
			}
			return nil
		})
	}

	if c.opts.Advertiser != nil && c.settings.MDNS && c.Mode() == wifi.Client {
		g.Go(func() error {
			c.advertise(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (c *Controller) advertise(ctx context.Context) {
	cfg := c.config()
	ad := discovery.Advertisement{
		Instance:     cfg.DisplayName(c.settings.DeviceLabel),
		Port:         portOf(c.settings.HTTPAddr),
		Number:       cfg.PixelTubeNumber,
		Universe:     cfg.ArtNetUniverse,
		StartAddress: cfg.ArtNetStartAddress,
		MAC:          wifi.FormatMAC(c.opts.Radio.HardwareAddr(), ":"),
		Version:      version.Short(),
		Configured:   cfg.IsConfigured,
	}
	if err := c.opts.Advertiser.Advertise(ad); err != nil {
		logging.Warn("mDNS advertisement failed", zap.Error(err))
		return
	}
	<-ctx.Done()
	c.opts.Advertiser.Stop()
}

// observe records the last link event and pushes the new status to the UI.
func (c *Controller) observe(ev events.Event) {
	c.mu.Lock()
	c.lastEvent = ev.String()
	c.mu.Unlock()

	if c.web != nil {
		c.web.Notify()
	}
}

func (c *Controller) degrade(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.degraded {
		if r == reason {
			return
		}
	}
	c.degraded = append(c.degraded, reason)
}

// config returns the configuration of this boot. Before Start it is read
// from the store without side effects.
func (c *Controller) config() *netconfig.NetworkConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg
	}
	cfg, err := netconfig.Load(c.opts.Config)
	if err != nil {
		logging.Warn("Configuration store unreadable", zap.Error(err))
		return &netconfig.NetworkConfig{}
	}
	return cfg
}

// portOf returns the port of a listen address, discovery.DefaultPort if none
func portOf(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return discovery.DefaultPort
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 {
		return discovery.DefaultPort
	}
	return n
}

func joinAddrs(addrs []net.IP) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func orNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
