package captive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/pixeltube/basecamp/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultAddr is the listen address of the responder
	DefaultAddr = ":53"

	// DefaultTTL is the TTL of every answer. It is short so clients stop
	// using the portal address soon after the device leaves setup mode.
	DefaultTTL = 60

	// DefaultRetryInterval is the wait between attempts to bind the listener
	DefaultRetryInterval = time.Second
)

// Responder answers every A query with the access point address, which sends
// any client of the setup network to the configuration page.
type Responder struct {
	addr          string
	target        net.IP
	ttl           uint32
	retryInterval time.Duration
}

// NewResponder creates a responder listening on addr (UDP) that resolves all
// names to target.
func NewResponder(addr string, target net.IP) *Responder {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Responder{
		addr:          addr,
		target:        target.To4(),
		ttl:           DefaultTTL,
		retryInterval: DefaultRetryInterval,
	}
}

// ServeDNS implements dns.Handler.
func (r *Responder) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	for _, q := range req.Question {
		logging.Debug("Captive DNS query",
			zap.String("name", q.Name),
			zap.String("type", dns.TypeToString[q.Qtype]),
			zap.String("client", w.RemoteAddr().String()),
		)

		switch q.Qtype {
		case dns.TypeA, dns.TypeANY:
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{
					Name:   q.Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    r.ttl,
				},
				A: r.target,
			})
		}
	}

	if err := w.WriteMsg(m); err != nil {
		logging.Debug("Failed to write DNS reply", zap.Error(err))
	}
}

// Run serves queries until ctx is done. If the listener cannot be bound or
// fails, it is retried every retry interval.
func (r *Responder) Run(ctx context.Context) error {
	if r.target == nil {
		return errors.New("captive DNS needs an IPv4 target address")
	}

	logging.Info("Starting captive DNS responder",
		zap.String("addr", r.addr),
		zap.String("target", r.target.String()),
	)

	for {
		err := r.serve(ctx)
		if ctx.Err() != nil {
			logging.Info("Captive DNS responder stopped")
			return nil
		}
		logging.Warn("Captive DNS listener failed, retrying",
			zap.String("addr", r.addr),
			zap.Duration("interval", r.retryInterval),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retryInterval):
		}
	}
}

func (r *Responder) serve(ctx context.Context) error {
	server := &dns.Server{Addr: r.addr, Net: "udp", Handler: r}
	server.NotifyStartedFunc = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := server.ShutdownContext(shutdownCtx); err != nil {
				logging.Debug("Captive DNS shutdown", zap.Error(err))
			}
		}()
	}

	if err := server.ListenAndServe(); err != nil {
		return err
	}
	return fmt.Errorf("listener on %s closed", r.addr)
}
