package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Candidate is a validated host:port pair awaiting probing. Its identity is
// the exact "host:port" string, which the pipeline uses for set-based
// deduplication.
type Candidate struct {
	Host string
	Port uint16
}

// ParseCandidate validates a raw "host:port" line. The host must be a strict
// dotted-quad IPv4 address (four integers 0-255, no extra characters) and the
// port an integer between 1 and 65535. Malformed input yields an error, never
// a panic.
func ParseCandidate(raw string) (Candidate, error) {
	if strings.Count(raw, ":") != 1 {
		return Candidate{}, fmt.Errorf("candidate %q: expected exactly one ':' separator", raw)
	}

	host, portPart, _ := strings.Cut(raw, ":")
	if !validIPv4(host) {
		return Candidate{}, fmt.Errorf("candidate %q: invalid IPv4 host", raw)
	}

	port, err := strconv.Atoi(portPart)
	if err != nil || port < 1 || port > 65535 {
		return Candidate{}, fmt.Errorf("candidate %q: port out of range", raw)
	}

	return Candidate{Host: host, Port: uint16(port)}, nil
}

// validIPv4 accepts only plain dotted-quad notation. net.ParseIP is too
// permissive here: it allows IPv6 and other forms the pipeline must reject.
func validIPv4(host string) bool {
	octets := strings.Split(host, ".")
	if len(octets) != 4 {
		return false
	}
	for _, octet := range octets {
		if octet == "" || len(octet) > 3 {
			return false
		}
		for _, c := range octet {
			if c < '0' || c > '9' {
				return false
			}
		}
		value, err := strconv.Atoi(octet)
		if err != nil || value > 255 {
			return false
		}
	}
	return true
}

// Address returns the canonical "host:port" identity string.
func (c Candidate) Address() string {
	return c.Host + ":" + strconv.Itoa(int(c.Port))
}
