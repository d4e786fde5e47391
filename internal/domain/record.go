package domain

import "time"

// ProbeOutcome is the result of a single TCP connect attempt.
// LatencyMillis is only meaningful when Reachable is true.
type ProbeOutcome struct {
	Candidate     Candidate
	Reachable     bool
	LatencyMillis float64
}

// BlacklistVerdict reports DNSBL membership for one IP. Listed is true when
// any queried blocklist resolved the reversed-IP query to an address.
type BlacklistVerdict struct {
	IP     string
	Listed bool
}

// RiskScore is the heuristic abuse score for one IP, 0-100, higher = more
// suspicious.
type RiskScore struct {
	IP    string
	Score int
}

// AcceptanceRecord is the terminal per-candidate entity. The orchestrator
// owns its lifecycle from creation to emission into the accepted set, and
// flushes finalized records to the result store after every chunk.
type AcceptanceRecord struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	RunID         uint64 `gorm:"index"`
	Address       string `gorm:"size:21;index:idx_record_run_addr"`
	Reachable     bool
	LatencyMillis float64
	Listed        bool
	Score         int
	Accepted      bool      `gorm:"index"`
	Country       string    `gorm:"size:56"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// RunSummary captures one pipeline run end to end, including truncated runs
// that hit the overall deadline.
type RunSummary struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	StartedAt      time.Time
	DurationMillis int64
	TotalInput     int
	Deduplicated   int
	Malformed      int
	Reachable      int
	Listed         int
	Accepted       int
	DeadlineHit    bool
}
