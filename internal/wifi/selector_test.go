package wifi

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/pixeltube/basecamp/internal/netconfig"
)

type fakeRadio struct {
	mac       net.HardwareAddr
	calls     []string
	static    *netconfig.Lease
	apSSID    string
	apSecret  string
	staticErr error
}

func (r *fakeRadio) RequestStaticLease(lease netconfig.Lease) error {
	r.calls = append(r.calls, "static")
	if r.staticErr != nil {
		return r.staticErr
	}
	r.static = &lease
	return nil
}

func (r *fakeRadio) Connect(ssid, secret string) error {
	r.calls = append(r.calls, "connect:"+ssid)
	return nil
}

func (r *fakeRadio) SetHostname(name string) error {
	r.calls = append(r.calls, "hostname:"+name)
	return nil
}

func (r *fakeRadio) StartAccessPoint(ssid, secret string) error {
	r.calls = append(r.calls, "ap")
	r.apSSID = ssid
	r.apSecret = secret
	return nil
}

func (r *fakeRadio) HardwareAddr() net.HardwareAddr {
	return r.mac
}

func newFakeRadio() *fakeRadio {
	mac, _ := net.ParseMAC("A4:CF:12:E8:0B:3C")
	return &fakeRadio{mac: mac}
}

func TestBegin_ClientWithLease(t *testing.T) {
	radio := newFakeRadio()
	lease, _ := netconfig.ParseLease("10.0.0.5", "10.0.0.1", "255.255.255.0")
	cfg := &netconfig.NetworkConfig{IsConfigured: true, SSID: "home", Secret: "hunter22", LastLease: &lease}

	mode := NewSelector(radio, "", true).Begin(cfg, "pixel-tube-3")
	if mode != Client {
		t.Fatalf("Begin() = %v, want client", mode)
	}

	want := []string{"static", "hostname:pixel-tube-3", "connect:home"}
	if strings.Join(radio.calls, ",") != strings.Join(want, ",") {
		t.Errorf("radio calls = %v, want %v", radio.calls, want)
	}
	if radio.static == nil || radio.static.String() != "10.0.0.5/24 via 10.0.0.1" {
		t.Errorf("static lease = %v", radio.static)
	}
}

func TestBegin_ClientWithoutLease(t *testing.T) {
	radio := newFakeRadio()
	cfg := &netconfig.NetworkConfig{IsConfigured: true, SSID: "home"}

	NewSelector(radio, "", true).Begin(cfg, "pixel-tube-unconfigured")
	for _, c := range radio.calls {
		if c == "static" {
			t.Error("static lease requested without a stored lease")
		}
	}
}

func TestBegin_ClientWithMalformedLease(t *testing.T) {
	radio := newFakeRadio()
	cfg := &netconfig.NetworkConfig{
		IsConfigured: true,
		SSID:         "home",
		LastLease:    &netconfig.Lease{Address: net.IPv4(10, 0, 0, 5)},
	}

	NewSelector(radio, "", true).Begin(cfg, "h")
	if radio.static != nil {
		t.Error("malformed lease was requested")
	}
}

func TestBegin_StaticRejectedStillConnects(t *testing.T) {
	radio := newFakeRadio()
	radio.staticErr = errors.New("rejected")
	lease, _ := netconfig.ParseLease("10.0.0.5", "10.0.0.1", "255.255.255.0")
	cfg := &netconfig.NetworkConfig{IsConfigured: true, SSID: "home", LastLease: &lease}

	NewSelector(radio, "", true).Begin(cfg, "h")
	if radio.calls[len(radio.calls)-1] != "connect:home" {
		t.Errorf("radio calls = %v, association must proceed", radio.calls)
	}
}

func TestBegin_AccessPoint(t *testing.T) {
	tests := []struct {
		name       string
		encrypt    bool
		secret     string
		wantSecret string
	}{
		{"secured with valid secret", true, "abcdefgh", "abcdefgh"},
		{"secured with short secret", true, "abc", ""},
		{"secured without secret", true, "", ""},
		{"policy none", false, "abcdefgh", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			radio := newFakeRadio()
			sel := NewSelector(radio, "", tt.encrypt)
			mode := sel.Begin(&netconfig.NetworkConfig{APSecret: tt.secret}, "h")

			if mode != AccessPoint {
				t.Fatalf("Begin() = %v, want access-point", mode)
			}
			if radio.apSSID != "PixelTube_a4cf12e80b3c" {
				t.Errorf("AP SSID = %q", radio.apSSID)
			}
			if radio.apSecret != tt.wantSecret {
				t.Errorf("AP secret = %q, want %q", radio.apSecret, tt.wantSecret)
			}
			if sel.AccessPointName() != radio.apSSID {
				t.Errorf("AccessPointName() = %q, want %q", sel.AccessPointName(), radio.apSSID)
			}
		})
	}
}

func TestAccessPointName_Deterministic(t *testing.T) {
	mac, _ := net.ParseMAC("00:1b:44:11:3a:b7")
	first := AccessPointName("", mac)
	for i := 0; i < 5; i++ {
		if got := AccessPointName("", mac); got != first {
			t.Fatalf("AccessPointName() = %q, then %q", first, got)
		}
	}
	if first != "PixelTube_001b44113ab7" {
		t.Errorf("AccessPointName() = %q", first)
	}
	if got := AccessPointName("Lamp", mac); got != "Lamp_001b44113ab7" {
		t.Errorf("AccessPointName(Lamp) = %q", got)
	}
}

func TestFormatMAC(t *testing.T) {
	mac, _ := net.ParseMAC("A4:CF:12:E8:0B:3C")
	if got := FormatMAC(mac, ":"); got != "a4:cf:12:e8:0b:3c" {
		t.Errorf("FormatMAC(:) = %q", got)
	}
	if got := FormatMAC(mac, ""); got != "a4cf12e80b3c" {
		t.Errorf("FormatMAC() = %q", got)
	}
}

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret("12345"); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("ValidateSecret(5 chars) = %v, want ErrSecretTooShort", err)
	}
	if err := ValidateSecret("1234567890"); err != nil {
		t.Errorf("ValidateSecret(10 chars) = %v", err)
	}
}

func TestGenerateSecret(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{DefaultSecretLength, 8},
		{3, MinSecretLength},
		{16, 16},
	}

	for _, tt := range tests {
		secret, err := GenerateSecret(tt.length)
		if err != nil {
			t.Fatalf("GenerateSecret(%d) error = %v", tt.length, err)
		}
		if len(secret) != tt.want {
			t.Errorf("GenerateSecret(%d) length = %d, want %d", tt.length, len(secret), tt.want)
		}
		for _, r := range secret {
			if !strings.ContainsRune(secretAlphabet, r) {
				t.Errorf("GenerateSecret() produced %q outside the alphabet", r)
			}
		}
		if strings.ContainsAny(secret, "0O1Iil") {
			t.Errorf("GenerateSecret() = %q contains ambiguous characters", secret)
		}
	}
}
