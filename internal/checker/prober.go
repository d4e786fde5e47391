package checker

import (
	"context"
	"net"
	"time"

	"proxysieve/internal/domain"
	"proxysieve/internal/metrics"
)

const DefaultConnectTimeout = 1500 * time.Millisecond

// Prober performs single-shot TCP connect tests. It opens exactly one socket
// per probe and closes it immediately; bounding how many probes run at once
// is the caller's job.
type Prober struct {
	Timeout time.Duration
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Prober{Timeout: timeout}
}

// Probe attempts one TCP connection to the candidate. Every failure mode
// (refused, unreachable, timeout, context cancellation) collapses to
// Reachable=false; no error cause is preserved.
func (p *Prober) Probe(ctx context.Context, candidate domain.Candidate) domain.ProbeOutcome {
	outcome := domain.ProbeOutcome{Candidate: candidate}

	dialCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var dialer net.Dialer
	start := time.Now()
	conn, err := dialer.DialContext(dialCtx, "tcp", candidate.Address())
	if err != nil {
		metrics.ProbesTotal.WithLabelValues("unreachable").Inc()
		return outcome
	}
	_ = conn.Close()

	outcome.Reachable = true
	outcome.LatencyMillis = float64(time.Since(start).Microseconds()) / 1000.0
	metrics.ProbesTotal.WithLabelValues("reachable").Inc()
	return outcome
}
