package reputation

import (
	"strconv"
	"strings"
)

// Abuse-risk bands. The scorer is a coarse octet-pattern heuristic, not a
// reputation-feed integration; it exists to demote address space that has no
// business appearing in a public proxy list.
const (
	ScorePrivate     = 80  // private/reserved ranges
	ScoreAbused      = 65  // first octets with a long abuse history
	ScoreLowRisk     = 20  // well-known low-risk infrastructure space
	ScoreNeutral     = 30  // everything else
	ScoreUnparseable = 100 // most conservative answer for garbage input
)

type rule struct {
	label string
	match func(octets [4]int) bool
	score int
}

var rules = []rule{
	{
		label: "private_10",
		match: func(o [4]int) bool { return o[0] == 10 },
		score: ScorePrivate,
	},
	{
		label: "private_172",
		match: func(o [4]int) bool { return o[0] == 172 && o[1] >= 16 && o[1] <= 31 },
		score: ScorePrivate,
	},
	{
		label: "private_192168",
		match: func(o [4]int) bool { return o[0] == 192 && o[1] == 168 },
		score: ScorePrivate,
	},
	{
		label: "loopback",
		match: func(o [4]int) bool { return o[0] == 127 },
		score: ScorePrivate,
	},
	{
		label: "link_local",
		match: func(o [4]int) bool { return o[0] == 169 && o[1] == 254 },
		score: ScorePrivate,
	},
	{
		label: "abused_first_octet",
		match: func(o [4]int) bool { return o[0] == 185 || o[0] == 194 || o[0] == 195 },
		score: ScoreAbused,
	},
	{
		label: "low_risk_first_octet",
		match: func(o [4]int) bool { return o[0] == 1 || o[0] == 2 || o[0] == 3 },
		score: ScoreLowRisk,
	},
}

// Score maps an IPv4 string to an abuse-risk score in 0-100. It is pure and
// never fails: anything that does not parse as a dotted quad gets the most
// conservative score.
func Score(ip string) int {
	octets, ok := parseOctets(ip)
	if !ok {
		return ScoreUnparseable
	}

	for _, r := range rules {
		if r.match(octets) {
			return r.score
		}
	}
	return ScoreNeutral
}

func parseOctets(ip string) ([4]int, bool) {
	var octets [4]int

	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return octets, false
	}
	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 || value > 255 {
			return octets, false
		}
		octets[i] = value
	}
	return octets, true
}
