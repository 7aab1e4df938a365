// Package network answers one question: can the configured server be
// reached right now. The answer is published as an observable so the
// repository and sync loops always act on the freshest verdict.
package network

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pinesap/lectern/live"
)

const (
	dialTimeout   = 2 * time.Second
	retryInterval = 300 * time.Millisecond
	maxRetries    = 3
)

// Monitor probes the server address with a plain TCP dial. A dial that
// fails is retried a few times with constant backoff before the server
// is declared unreachable, so one dropped packet does not flip every
// listing into offline mode.
type Monitor struct {
	address string
	status  *live.Value[bool]
}

// NewMonitor derives the dial target from the server URL. An empty or
// unparseable host pins the status to offline.
func NewMonitor(serverURL string) *Monitor {
	address := ""
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Host != "" {
		host := parsed.Host
		if parsed.Port() == "" {
			port := "80"
			if parsed.Scheme == "https" {
				port = "443"
			}
			host = net.JoinHostPort(parsed.Hostname(), port)
		}
		address = host
	}
	return &Monitor{
		address: address,
		status:  live.NewValue(false),
	}
}

// Refresh probes the server once and updates the published status.
func (m *Monitor) Refresh(ctx context.Context) bool {
	online := m.probe(ctx)
	m.status.Set(online)
	return online
}

func (m *Monitor) probe(ctx context.Context) bool {
	if m.address == "" {
		return false
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), maxRetries),
		ctx,
	)
	err := backoff.Retry(func() error {
		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", m.address)
		if err != nil {
			return err
		}
		conn.Close()
		return nil
	}, policy)
	return err == nil
}

// Online reports the last published verdict without probing.
func (m *Monitor) Online() bool {
	return m.status.Get()
}

// Watch streams status changes, starting with the current verdict.
func (m *Monitor) Watch(ctx context.Context) <-chan bool {
	return m.status.Subscribe(ctx)
}
