package probe

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/sirupsen/logrus"
)

// Outcome is the result of one reachability check against one address.
// Unreachable is a valid outcome, not an error.
type Outcome struct {
	Reachable bool
	Attempts  int
	Elapsed   time.Duration
}

// Prober performs a reachability check against a single address.
type Prober interface {
	Probe(ctx context.Context, addr string) Outcome
}

// Config holds probe settings.
type Config struct {
	// Timeout is the per-attempt deadline.
	Timeout time.Duration

	// MaxAttempts is the total number of echo attempts before the
	// address is accepted as down.
	MaxAttempts int

	// Privileged selects raw-socket ICMP. When false, pro-bing falls
	// back to unprivileged UDP echo (requires the ping_group_range
	// sysctl on Linux).
	Privileged bool
}

// Pinger probes addresses with ICMP echo requests.
type Pinger struct {
	log logrus.FieldLogger
	cfg Config

	// ping performs a single attempt; swapped out in tests.
	ping func(ctx context.Context, addr string) bool
}

// NewPinger creates an ICMP prober.
func NewPinger(log logrus.FieldLogger, cfg Config) *Pinger {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	p := &Pinger{
		log: log.WithField("component", "probe"),
		cfg: cfg,
	}
	p.ping = p.pingOnce

	return p
}

// Probe checks reachability of addr, retrying failed attempts up to the
// configured limit and stopping at the first success.
func (p *Pinger) Probe(ctx context.Context, addr string) Outcome {
	start := time.Now()

	if addr == "" {
		return Outcome{Reachable: false, Attempts: 0, Elapsed: time.Since(start)}
	}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{Reachable: false, Attempts: attempt - 1, Elapsed: time.Since(start)}
		default:
		}

		if p.ping(ctx, addr) {
			return Outcome{Reachable: true, Attempts: attempt, Elapsed: time.Since(start)}
		}
	}

	return Outcome{Reachable: false, Attempts: p.cfg.MaxAttempts, Elapsed: time.Since(start)}
}

// pingOnce sends a single echo request and waits up to the attempt timeout.
func (p *Pinger) pingOnce(ctx context.Context, addr string) bool {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		// Malformed addresses are rejected at registry load; anything
		// reaching here is treated as unreachable.
		p.log.WithError(err).WithField("addr", addr).Debug("Failed to create pinger")

		return false
	}

	pinger.Count = 1
	pinger.Timeout = p.cfg.Timeout
	pinger.SetPrivileged(p.cfg.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		p.log.WithError(err).WithField("addr", addr).Debug("Echo attempt failed")

		return false
	}

	return pinger.Statistics().PacketsRecv > 0
}
