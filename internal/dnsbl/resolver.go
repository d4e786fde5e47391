package dnsbl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"proxysieve/internal/domain"
	"proxysieve/internal/metrics"
)

const DefaultQueryTimeout = 2 * time.Second

// DefaultDomains is the stock blocklist set. Every entry answers reversed-IP
// A queries without an access key.
var DefaultDomains = []string{
	"zen.spamhaus.org",
	"bl.spamcop.net",
	"dnsbl.sorbs.net",
	"xbl.spamhaus.org",
	"pbl.spamhaus.org",
	"dnsbl-1.uceprotect.net",
	"b.barracudacentral.org",
}

// Policy decides how a lookup error or timeout maps to a listing verdict.
// NXDOMAIN always means "not listed" regardless of policy.
type Policy int

const (
	// FailOpen treats errored or timed-out lookups as "not listed". This is
	// the default: a slow blocklist provider must not stall the run.
	FailOpen Policy = iota
	// FailClosed treats errored or timed-out lookups as "listed".
	FailClosed
)

func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "fail-open", "open":
		return FailOpen, nil
	case "fail-closed", "closed":
		return FailClosed, nil
	}
	return FailOpen, fmt.Errorf("unknown dnsbl policy %q", raw)
}

type queryOutcome int

const (
	outcomeListed queryOutcome = iota
	outcomeNXDomain
	outcomeTimeout
	outcomeError
)

func (o queryOutcome) String() string {
	switch o {
	case outcomeListed:
		return "listed"
	case outcomeNXDomain:
		return "nxdomain"
	case outcomeTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// LookupFunc resolves a hostname to A records. Tests inject fakes here; the
// production resolver uses the native net.Resolver, never an external tool.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Resolver answers DNSBL membership questions for IPv4 addresses.
type Resolver struct {
	Domains []string
	Timeout time.Duration
	Policy  Policy

	lookup LookupFunc
}

func NewResolver(domains []string, timeout time.Duration, policy Policy) *Resolver {
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Resolver{
		Domains: domains,
		Timeout: timeout,
		Policy:  policy,
		lookup:  nativeLookup,
	}
}

// NewResolverWithLookup is the test seam for injecting a fake DNS backend.
func NewResolverWithLookup(domains []string, timeout time.Duration, policy Policy, lookup LookupFunc) *Resolver {
	r := NewResolver(domains, timeout, policy)
	r.lookup = lookup
	return r
}

func nativeLookup(ctx context.Context, host string) ([]net.IP, error) {
	resolver := &net.Resolver{}
	return resolver.LookupIP(ctx, "ip4", host)
}

// ReverseIPv4 turns "1.2.3.4" into "4.3.2.1" for DNSBL query construction.
func ReverseIPv4(ip string) (string, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("not an IPv4 address: %q", ip)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "."), nil
}

// Check queries every configured blocklist for the IP concurrently. It
// returns Listed=true as soon as any blocklist answers the reversed-IP query;
// a "not listed" verdict requires every blocklist to answer NXDOMAIN, error,
// or time out. Errors and timeouts map through the configured Policy.
func (r *Resolver) Check(ctx context.Context, ip string) domain.BlacklistVerdict {
	verdict := domain.BlacklistVerdict{IP: ip}

	reversed, err := ReverseIPv4(ip)
	if err != nil {
		verdict.Listed = r.Policy == FailClosed
		return verdict
	}

	queryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(r.Domains))
	for _, blocklist := range r.Domains {
		go func(blocklist string) {
			results <- r.queryOne(queryCtx, reversed, blocklist)
		}(blocklist)
	}

	for range r.Domains {
		if <-results {
			// Short-circuit: one positive answer settles the verdict and
			// cancel() abandons the remaining in-flight queries.
			verdict.Listed = true
			return verdict
		}
	}
	return verdict
}

func (r *Resolver) queryOne(ctx context.Context, reversed, blocklist string) bool {
	lookupCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	answers, err := r.lookup(lookupCtx, reversed+"."+blocklist)

	outcome := classify(answers, err)
	metrics.DNSBLQueriesTotal.WithLabelValues(blocklist, outcome.String()).Inc()

	switch outcome {
	case outcomeListed:
		return true
	case outcomeNXDomain:
		return false
	default:
		return r.Policy == FailClosed
	}
}

func classify(answers []net.IP, err error) queryOutcome {
	if err == nil {
		if len(answers) == 0 {
			return outcomeNXDomain
		}
		return outcomeListed
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return outcomeNXDomain
		}
		if dnsErr.IsTimeout {
			return outcomeTimeout
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return outcomeTimeout
	}
	return outcomeError
}
