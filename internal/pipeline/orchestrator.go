package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"proxysieve/internal/domain"
	"proxysieve/internal/metrics"
)

const (
	DefaultChunkSize        = 200
	DefaultProbeConcurrency = 256
	DefaultDNSConcurrency   = 64
	DefaultScoreThreshold   = 50

	// Breather between chunks so very large candidate sets do not pin file
	// descriptors at the cap continuously.
	interChunkYield = 10 * time.Millisecond
)

// Prober runs one connectivity test per candidate.
type Prober interface {
	Probe(ctx context.Context, candidate domain.Candidate) domain.ProbeOutcome
}

// BlacklistChecker answers DNSBL membership for one IP.
type BlacklistChecker interface {
	Check(ctx context.Context, ip string) domain.BlacklistVerdict
}

// ScoreFunc maps an IP to its 0-100 abuse-risk score.
type ScoreFunc func(ip string) int

// RecordSink receives finalized records chunk by chunk, so a deadline-
// truncated run still persists everything that completed.
type RecordSink interface {
	BeginRun(ctx context.Context, summary *domain.RunSummary) error
	SaveRecords(ctx context.Context, runID uint64, records []domain.AcceptanceRecord) error
	FinishRun(ctx context.Context, summary *domain.RunSummary) error
}

// VerdictStore caches per-IP blacklist verdicts across chunks and runs.
type VerdictStore interface {
	Get(ctx context.Context, ip string) (listed bool, found bool)
	Put(ctx context.Context, ip string, listed bool)
}

type Options struct {
	ChunkSize        int
	ProbeConcurrency int
	DNSConcurrency   int
	ScoreThreshold   int
	// MaxLatencyMillis rejects reachable candidates slower than this; 0
	// disables the cap.
	MaxLatencyMillis float64
	// OverallDeadline bounds the whole run. Zero means zero budget: the run
	// terminates immediately with an empty, well-formed result. Negative
	// disables the deadline.
	OverallDeadline time.Duration
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ProbeConcurrency <= 0 {
		o.ProbeConcurrency = DefaultProbeConcurrency
	}
	if o.DNSConcurrency <= 0 {
		o.DNSConcurrency = DefaultDNSConcurrency
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = DefaultScoreThreshold
	}
}

// Orchestrator drives raw candidate lines through validation, probing,
// blacklist resolution, scoring and filtering. It is the sole recovery
// boundary: no stage failure aborts a run, and a run always produces a
// well-formed (possibly empty) result.
type Orchestrator struct {
	opts      Options
	prober    Prober
	blacklist BlacklistChecker
	score     ScoreFunc
	sink      RecordSink
	verdicts  VerdictStore

	phase   atomic.Int32
	ipGroup singleflight.Group
}

// Result is the terminal artifact of one run. Accepted holds the final
// accepted set in pipeline order; Records carries the full per-candidate
// accounting for the detailed report.
type Result struct {
	Summary  domain.RunSummary
	Records  []domain.AcceptanceRecord
	Accepted []string
}

func New(opts Options, prober Prober, blacklist BlacklistChecker, score ScoreFunc, sink RecordSink, verdicts VerdictStore) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		opts:      opts,
		prober:    prober,
		blacklist: blacklist,
		score:     score,
		sink:      sink,
		verdicts:  verdicts,
	}
}

// Phase reports the current run phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase.Store(int32(p))
	metrics.RunPhase.Set(float64(p))
}

// Run processes the raw candidate lines end to end. The returned Result is
// always well-formed; zero accepted candidates is a valid terminal state.
func (o *Orchestrator) Run(ctx context.Context, rawLines []string) *Result {
	start := time.Now()
	result := &Result{}
	result.Summary.StartedAt = start
	result.Summary.TotalInput = len(rawLines)

	// Persistence must survive deadline expiry: finalized records from a
	// truncated run are exactly the partial result we owe the caller.
	persistCtx := context.WithoutCancel(ctx)

	runCtx := ctx
	if o.opts.OverallDeadline >= 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.opts.OverallDeadline)
		defer cancel()
	}

	o.setPhase(PhaseValidating)
	candidates, malformed := o.validate(rawLines)
	result.Summary.Malformed = malformed
	result.Summary.Deduplicated = len(candidates)

	if o.sink != nil {
		if err := o.sink.BeginRun(persistCtx, &result.Summary); err != nil {
			log.Error("Failed to open run summary", "error", err)
		}
	}

	log.Info("Run started",
		"input", len(rawLines),
		"candidates", len(candidates),
		"malformed", malformed,
		"chunk_size", o.opts.ChunkSize,
	)

	processed := 0
	for offset := 0; offset < len(candidates); offset += o.opts.ChunkSize {
		if runCtx.Err() != nil {
			result.Summary.DeadlineHit = true
			log.Warn("Overall deadline hit, truncating run",
				"processed", processed, "remaining", len(candidates)-processed)
			break
		}

		end := offset + o.opts.ChunkSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[offset:end]

		records := o.processChunk(runCtx, chunk)

		o.setPhase(PhaseFiltering)
		o.finalize(records, result)
		processed += len(chunk)

		if o.sink != nil {
			if err := o.sink.SaveRecords(persistCtx, result.Summary.ID, records); err != nil {
				log.Error("Failed to persist chunk records", "error", err)
			}
		}

		elapsed := time.Since(start).Seconds()
		throughput := 0.0
		if elapsed > 0 {
			throughput = float64(processed) / elapsed
		}
		log.Info("Chunk completed",
			"processed", processed,
			"total", len(candidates),
			"accepted", result.Summary.Accepted,
			"throughput", throughput,
		)

		if end < len(candidates) {
			select {
			case <-runCtx.Done():
			case <-time.After(interChunkYield):
			}
		}
	}

	o.setPhase(PhaseDone)
	result.Summary.DurationMillis = time.Since(start).Milliseconds()
	if runCtx.Err() != nil && processed < len(candidates) {
		result.Summary.DeadlineHit = true
	}

	if o.sink != nil {
		if err := o.sink.FinishRun(persistCtx, &result.Summary); err != nil {
			log.Error("Failed to finalize run summary", "error", err)
		}
	}

	log.Info("Run finished",
		"duration", time.Since(start),
		"candidates", len(candidates),
		"reachable", result.Summary.Reachable,
		"listed", result.Summary.Listed,
		"accepted", result.Summary.Accepted,
		"deadline_hit", result.Summary.DeadlineHit,
	)
	return result
}

// validate drops malformed lines and deduplicates by the exact host:port
// string, preserving first-seen order.
func (o *Orchestrator) validate(rawLines []string) ([]domain.Candidate, int) {
	seen := make(map[string]struct{}, len(rawLines))
	candidates := make([]domain.Candidate, 0, len(rawLines))
	malformed := 0

	for _, line := range rawLines {
		candidate, err := domain.ParseCandidate(line)
		if err != nil {
			malformed++
			continue
		}
		address := candidate.Address()
		if _, dup := seen[address]; dup {
			continue
		}
		seen[address] = struct{}{}
		candidates = append(candidates, candidate)
	}
	return candidates, malformed
}

// processChunk runs the probing, resolving and scoring stages for one chunk.
// Workers only write into their own slice slot; the orchestrator goroutine
// merges results afterwards.
func (o *Orchestrator) processChunk(ctx context.Context, chunk []domain.Candidate) []domain.AcceptanceRecord {
	o.setPhase(PhaseProbing)
	outcomes := make([]domain.ProbeOutcome, len(chunk))

	probeGroup := new(errgroup.Group)
	probeGroup.SetLimit(o.opts.ProbeConcurrency)
	for i, candidate := range chunk {
		probeGroup.Go(func() error {
			outcomes[i] = o.prober.Probe(ctx, candidate)
			return nil
		})
	}
	_ = probeGroup.Wait()

	o.setPhase(PhaseResolving)
	listed := make([]bool, len(chunk))

	dnsGroup := new(errgroup.Group)
	dnsGroup.SetLimit(o.opts.DNSConcurrency)
	for i := range chunk {
		if !outcomes[i].Reachable {
			continue
		}
		dnsGroup.Go(func() error {
			listed[i] = o.checkIP(ctx, chunk[i].Host)
			return nil
		})
	}
	_ = dnsGroup.Wait()

	o.setPhase(PhaseScoring)
	records := make([]domain.AcceptanceRecord, len(chunk))
	for i, candidate := range chunk {
		record := domain.AcceptanceRecord{
			Address:       candidate.Address(),
			Reachable:     outcomes[i].Reachable,
			LatencyMillis: outcomes[i].LatencyMillis,
			Listed:        listed[i],
		}
		if record.Reachable && !record.Listed {
			record.Score = o.score(candidate.Host)
		}
		records[i] = record
	}
	return records
}

// checkIP resolves the blacklist verdict for one IP, deduplicating
// concurrent lookups for the same address and consulting the verdict cache
// first. An IP shared by several candidates is resolved at most once per run.
func (o *Orchestrator) checkIP(ctx context.Context, ip string) bool {
	if o.verdicts != nil {
		if listed, found := o.verdicts.Get(ctx, ip); found {
			return listed
		}
	}

	value, _, _ := o.ipGroup.Do(ip, func() (interface{}, error) {
		verdict := o.blacklist.Check(ctx, ip)
		if o.verdicts != nil {
			o.verdicts.Put(ctx, ip, verdict.Listed)
		}
		return verdict.Listed, nil
	})

	isListed, _ := value.(bool)
	return isListed
}

// finalize applies the acceptance predicate and merges chunk records into
// the run result. Only the orchestrator goroutine touches the accumulators.
func (o *Orchestrator) finalize(records []domain.AcceptanceRecord, result *Result) {
	for i := range records {
		record := &records[i]

		withinLatency := o.opts.MaxLatencyMillis <= 0 ||
			record.LatencyMillis <= o.opts.MaxLatencyMillis
		record.Accepted = record.Reachable &&
			!record.Listed &&
			record.Score <= o.opts.ScoreThreshold &&
			withinLatency

		if record.Reachable {
			result.Summary.Reachable++
		}
		if record.Listed {
			result.Summary.Listed++
		}
		if record.Accepted {
			result.Summary.Accepted++
			result.Accepted = append(result.Accepted, record.Address)
			metrics.CandidatesAccepted.Inc()
		}
		metrics.CandidatesProcessed.Inc()
	}
	result.Records = append(result.Records, records...)
}
