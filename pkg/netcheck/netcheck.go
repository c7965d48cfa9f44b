// Package netcheck reports whether the streaming endpoint is reachable before
// a session acquires any devices.
package netcheck

import (
	"context"
	"net"
	"time"

	"github.com/lokutor-ai/voicepal/pkg/live"
)

const (
	DefaultAddress = "generativelanguage.googleapis.com:443"
	DefaultTimeout = 3 * time.Second
)

// Probe implements live.NetworkProbe with a TCP dial.
type Probe struct {
	Address string
	Timeout time.Duration

	dialer net.Dialer
}

func New(address string, timeout time.Duration) *Probe {
	if address == "" {
		address = DefaultAddress
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{Address: address, Timeout: timeout}
}

func (p *Probe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return live.Fail(live.CategoryNetwork, "probe "+p.Address, err)
	}
	return conn.Close()
}
