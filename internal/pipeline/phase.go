package pipeline

// Phase tracks where a run currently is. The deadline watcher can force a
// jump to PhaseDone from any phase, emitting whatever records were finalized.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseValidating
	PhaseProbing
	PhaseResolving
	PhaseScoring
	PhaseFiltering
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseValidating:
		return "validating"
	case PhaseProbing:
		return "probing"
	case PhaseResolving:
		return "resolving"
	case PhaseScoring:
		return "scoring"
	case PhaseFiltering:
		return "filtering"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}
