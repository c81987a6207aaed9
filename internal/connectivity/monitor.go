package connectivity

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

const (
	defaultProbeInterval = 15 * time.Second
	maxOfflineInterval   = 2 * time.Minute
	failureThreshold     = 2
)

// Prober checks reachability once.
type Prober func(ctx context.Context) error

// DialProber returns a Prober that opens and closes a TCP connection to addr.
func DialProber(addr string, timeout time.Duration) Prober {
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// HostPort extracts host:port from a base URL, defaulting the port from the
// scheme.
func HostPort(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", baseURL)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Monitor is an Oracle driven by periodic probes and by transport outcomes
// reported from API calls. Two consecutive failures flip it offline and one
// success flips it back online. While offline the probe interval grows
// exponentially up to a cap.
type Monitor struct {
	notifier

	probe    Prober
	interval time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	failures int
	probed   bool
	backoff  *backoff.ExponentialBackOff
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the probe cadence while online.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger *zap.SugaredLogger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor returns a Monitor that starts in the online state until the
// first probe says otherwise.
func NewMonitor(probe Prober, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		probe:    probe,
		interval: defaultProbeInterval,
	}
	m.online = true
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop().Sugar()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.interval
	b.MaxInterval = maxOfflineInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()
	m.backoff = b
	return m
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		m.Check(ctx)
		timer := time.NewTimer(m.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Check runs a single probe and records its outcome.
func (m *Monitor) Check(ctx context.Context) {
	if err := m.probe(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.ReportFailure(err)
		return
	}
	m.ReportSuccess()
}

// ReportFailure records a failed probe or request.
func (m *Monitor) ReportFailure(err error) {
	m.mu.Lock()
	m.failures++
	first := !m.probed
	m.probed = true
	flip := first || m.failures >= failureThreshold
	failures := m.failures
	m.mu.Unlock()

	m.logger.Debugw("connectivity probe failed", "failures", failures, "error", err)
	if flip && m.set(false) {
		m.logger.Warnw("went offline", "error", err)
	}
}

// ReportSuccess records a successful probe or request.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	m.failures = 0
	m.probed = true
	m.backoff.Reset()
	m.mu.Unlock()

	if m.set(true) {
		m.logger.Infow("went online")
	}
}

func (m *Monitor) nextDelay() time.Duration {
	if m.IsOnline() {
		return m.interval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.backoff.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return maxOfflineInterval
	}
	return d
}
