package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"proxysieve/internal/domain"
)

type fakeProber struct {
	mu        sync.Mutex
	reachable map[string]bool
	latency   map[string]float64
	calls     map[string]int
}

func newFakeProber(reachable map[string]bool) *fakeProber {
	return &fakeProber{
		reachable: reachable,
		latency:   make(map[string]float64),
		calls:     make(map[string]int),
	}
}

func (f *fakeProber) Probe(_ context.Context, candidate domain.Candidate) domain.ProbeOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	address := candidate.Address()
	f.calls[address]++

	outcome := domain.ProbeOutcome{Candidate: candidate, Reachable: f.reachable[address]}
	if outcome.Reachable {
		outcome.LatencyMillis = f.latency[address]
	}
	return outcome
}

type fakeBlacklist struct {
	mu     sync.Mutex
	listed map[string]bool
	calls  map[string]int
}

func newFakeBlacklist(listed map[string]bool) *fakeBlacklist {
	return &fakeBlacklist{listed: listed, calls: make(map[string]int)}
}

func (f *fakeBlacklist) Check(_ context.Context, ip string) domain.BlacklistVerdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ip]++
	return domain.BlacklistVerdict{IP: ip, Listed: f.listed[ip]}
}

type recordingSink struct {
	mu      sync.Mutex
	begun   bool
	flushes int
	records []domain.AcceptanceRecord
	final   domain.RunSummary
}

func (s *recordingSink) BeginRun(_ context.Context, summary *domain.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begun = true
	summary.ID = 7
	return nil
}

func (s *recordingSink) SaveRecords(_ context.Context, _ uint64, records []domain.AcceptanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	s.records = append(s.records, records...)
	return nil
}

func (s *recordingSink) FinishRun(_ context.Context, summary *domain.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.final = *summary
	return nil
}

func neutralScore(_ string) int { return 30 }

func TestRunEndToEndScenario(t *testing.T) {
	prober := newFakeProber(map[string]bool{
		"1.1.1.1:80":   true,
		"127.0.0.2:80": false,
	})
	blacklist := newFakeBlacklist(nil)
	sink := &recordingSink{}

	orchestrator := New(
		Options{ScoreThreshold: 50, OverallDeadline: -1},
		prober, blacklist, neutralScore, sink, nil,
	)

	result := orchestrator.Run(context.Background(),
		[]string{"1.1.1.1:80", "127.0.0.2:80", "bad:line"})

	if len(result.Accepted) != 1 || result.Accepted[0] != "1.1.1.1:80" {
		t.Fatalf("accepted set = %v, want [1.1.1.1:80]", result.Accepted)
	}
	if result.Summary.Malformed != 1 {
		t.Fatalf("malformed = %d, want 1", result.Summary.Malformed)
	}
	if result.Summary.Reachable != 1 {
		t.Fatalf("reachable = %d, want 1", result.Summary.Reachable)
	}
	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2 (malformed line excluded before probing)", len(result.Records))
	}
	if !sink.begun || sink.flushes == 0 {
		t.Fatal("sink did not receive chunk flushes")
	}
	if sink.final.Accepted != 1 {
		t.Fatalf("final summary accepted = %d, want 1", sink.final.Accepted)
	}
	if orchestrator.Phase() != PhaseDone {
		t.Fatalf("terminal phase = %v, want done", orchestrator.Phase())
	}
}

func TestRunDeduplicatesCandidates(t *testing.T) {
	prober := newFakeProber(map[string]bool{"1.1.1.1:80": true})
	blacklist := newFakeBlacklist(nil)

	orchestrator := New(
		Options{OverallDeadline: -1},
		prober, blacklist, neutralScore, nil, nil,
	)

	result := orchestrator.Run(context.Background(),
		[]string{"1.1.1.1:80", "1.1.1.1:80", "1.1.1.1:80"})

	if result.Summary.Deduplicated != 1 {
		t.Fatalf("deduplicated = %d, want 1", result.Summary.Deduplicated)
	}
	if prober.calls["1.1.1.1:80"] != 1 {
		t.Fatalf("probe calls = %d, want exactly 1", prober.calls["1.1.1.1:80"])
	}
	if len(result.Accepted) != 1 {
		t.Fatalf("accepted = %v, want exactly one entry", result.Accepted)
	}
	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
}

func TestRunSharedIPResolvedOnce(t *testing.T) {
	prober := newFakeProber(map[string]bool{
		"5.5.5.5:80":   true,
		"5.5.5.5:8080": true,
	})
	blacklist := newFakeBlacklist(map[string]bool{"5.5.5.5": true})

	// Chunk size 1 forces the two candidates into separate chunks; the
	// verdict cache must still collapse the second lookup.
	orchestrator := New(
		Options{ChunkSize: 1, OverallDeadline: -1},
		prober, blacklist, neutralScore, nil, newMapVerdicts(),
	)

	result := orchestrator.Run(context.Background(),
		[]string{"5.5.5.5:80", "5.5.5.5:8080"})

	if blacklist.calls["5.5.5.5"] != 1 {
		t.Fatalf("blacklist calls for shared IP = %d, want 1", blacklist.calls["5.5.5.5"])
	}
	if len(result.Accepted) != 0 {
		t.Fatalf("listed IP produced accepted candidates: %v", result.Accepted)
	}
	if result.Summary.Listed != 2 {
		t.Fatalf("listed count = %d, want 2", result.Summary.Listed)
	}
}

type mapVerdicts struct {
	mu sync.Mutex
	m  map[string]bool
}

func newMapVerdicts() *mapVerdicts {
	return &mapVerdicts{m: make(map[string]bool)}
}

func (v *mapVerdicts) Get(_ context.Context, ip string) (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	listed, found := v.m[ip]
	return listed, found
}

func (v *mapVerdicts) Put(_ context.Context, ip string, listed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[ip] = listed
}

func TestRunZeroDeadlineTerminates(t *testing.T) {
	prober := newFakeProber(map[string]bool{"1.1.1.1:80": true})
	blacklist := newFakeBlacklist(nil)

	orchestrator := New(
		Options{OverallDeadline: 0},
		prober, blacklist, neutralScore, nil, nil,
	)

	done := make(chan *Result, 1)
	go func() {
		done <- orchestrator.Run(context.Background(), []string{"1.1.1.1:80", "2.2.2.2:80"})
	}()

	select {
	case result := <-done:
		if len(result.Accepted) != 0 {
			t.Fatalf("zero-budget run accepted candidates: %v", result.Accepted)
		}
		if !result.Summary.DeadlineHit {
			t.Fatal("zero-budget run did not flag the deadline")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("zero-deadline run did not terminate")
	}
}

func TestRunEmptyInput(t *testing.T) {
	sink := &recordingSink{}
	orchestrator := New(
		Options{OverallDeadline: -1},
		newFakeProber(nil), newFakeBlacklist(nil), neutralScore, sink, nil,
	)

	result := orchestrator.Run(context.Background(), nil)

	if len(result.Accepted) != 0 || len(result.Records) != 0 {
		t.Fatalf("empty input produced output: %+v", result)
	}
	if result.Summary.DeadlineHit {
		t.Fatal("empty input flagged a deadline hit")
	}
	if !sink.begun {
		t.Fatal("empty run must still open and close a summary")
	}
}

func TestRunScoreThresholdFiltering(t *testing.T) {
	prober := newFakeProber(map[string]bool{
		"10.0.0.5:80": true,
		"1.2.3.4:80":  true,
	})
	blacklist := newFakeBlacklist(nil)

	scores := map[string]int{"10.0.0.5": 80, "1.2.3.4": 20}
	score := func(ip string) int { return scores[ip] }

	orchestrator := New(
		Options{ScoreThreshold: 50, OverallDeadline: -1},
		prober, blacklist, score, nil, nil,
	)

	result := orchestrator.Run(context.Background(),
		[]string{"10.0.0.5:80", "1.2.3.4:80"})

	if len(result.Accepted) != 1 || result.Accepted[0] != "1.2.3.4:80" {
		t.Fatalf("accepted = %v, want [1.2.3.4:80]", result.Accepted)
	}
}

func TestRunMaxLatencyCap(t *testing.T) {
	prober := newFakeProber(map[string]bool{
		"1.2.3.4:80": true,
		"2.3.4.5:80": true,
	})
	prober.latency["1.2.3.4:80"] = 120
	prober.latency["2.3.4.5:80"] = 4500

	orchestrator := New(
		Options{MaxLatencyMillis: 3000, OverallDeadline: -1},
		prober, newFakeBlacklist(nil), neutralScore, nil, nil,
	)

	result := orchestrator.Run(context.Background(),
		[]string{"1.2.3.4:80", "2.3.4.5:80"})

	if len(result.Accepted) != 1 || result.Accepted[0] != "1.2.3.4:80" {
		t.Fatalf("accepted = %v, want only the fast candidate", result.Accepted)
	}
}

func TestRunListedCandidateSkipsScoring(t *testing.T) {
	prober := newFakeProber(map[string]bool{"6.6.6.6:80": true})
	blacklist := newFakeBlacklist(map[string]bool{"6.6.6.6": true})

	scored := false
	score := func(_ string) int {
		scored = true
		return 0
	}

	orchestrator := New(
		Options{OverallDeadline: -1},
		prober, blacklist, score, nil, nil,
	)
	orchestrator.Run(context.Background(), []string{"6.6.6.6:80"})

	if scored {
		t.Fatal("listed candidate must not reach the scorer")
	}
}

func TestRunChunking(t *testing.T) {
	reachable := map[string]bool{}
	lines := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		address := domain.Candidate{Host: "9.9.9.9", Port: uint16(1000 + i)}.Address()
		reachable[address] = true
		lines = append(lines, address)
	}

	sink := &recordingSink{}
	orchestrator := New(
		Options{ChunkSize: 3, OverallDeadline: -1},
		newFakeProber(reachable), newFakeBlacklist(nil), neutralScore, sink, newMapVerdicts(),
	)

	result := orchestrator.Run(context.Background(), lines)

	if sink.flushes != 4 {
		t.Fatalf("chunk flushes = %d, want 4 for 10 candidates at chunk size 3", sink.flushes)
	}
	if len(result.Accepted) != 10 {
		t.Fatalf("accepted = %d, want 10", len(result.Accepted))
	}
}
