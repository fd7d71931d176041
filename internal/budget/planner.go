package budget

import (
	"errors"
	"fmt"
	"time"
)

// ErrInfeasible signals that the remaining allowance cannot cover a
// phase's minimum useful duration. The caller must skip the phase or fail
// the request, never attempt a call doomed to be cut short.
var ErrInfeasible = errors.New("budget: phase infeasible")

// Phase names one remote-call step with its own floor and default timeout.
type Phase string

const (
	PhasePrimaryTranscribe  Phase = "primary_transcribe"
	PhaseFallbackTranscribe Phase = "fallback_transcribe"
	PhasePostProcess        Phase = "post_process"
	PhaseVisionExtract      Phase = "vision_extract"
	PhaseClassify           Phase = "classify"
	PhaseReplyGenerate      Phase = "reply_generate"
	PhaseNameExtract        Phase = "name_extract"
)

// phasePlan holds the static timeout envelope for one phase.
type phasePlan struct {
	Default time.Duration
	Minimum time.Duration
}

// phaseTable is the single source of timeout arithmetic. Adding a phase is
// a table entry, not new arithmetic at a call site. The fallback
// transcription floor is materially higher than the primary's: it is only
// tried after the primary has already failed and burned budget, so a
// clipped attempt is not worth starting.
var phaseTable = map[Phase]phasePlan{
	PhasePrimaryTranscribe:  {Default: 3000 * time.Millisecond, Minimum: 1000 * time.Millisecond},
	PhaseFallbackTranscribe: {Default: 3000 * time.Millisecond, Minimum: 2500 * time.Millisecond},
	PhasePostProcess:        {Default: 1500 * time.Millisecond, Minimum: 1000 * time.Millisecond},
	PhaseVisionExtract:      {Default: 4000 * time.Millisecond, Minimum: 2000 * time.Millisecond},
	PhaseClassify:           {Default: 2000 * time.Millisecond, Minimum: 1000 * time.Millisecond},
	PhaseReplyGenerate:      {Default: 4000 * time.Millisecond, Minimum: 1500 * time.Millisecond},
	PhaseNameExtract:        {Default: 5000 * time.Millisecond, Minimum: 2000 * time.Millisecond},
}

// Plan computes the timeout to hand to a phase's remote call:
// min(default, remaining - buffer). An exactly-equal-to-minimum result is
// feasible (inclusive boundary). Unknown phases are a programming error.
func Plan(b *Budget, phase Phase) (time.Duration, error) {
	plan, ok := phaseTable[phase]
	if !ok {
		return 0, fmt.Errorf("budget: unknown phase %q", phase)
	}

	available := b.Remaining() - b.buffer
	if available < plan.Minimum {
		return 0, fmt.Errorf("%w: phase %s needs %.1fs, %.1fs available",
			ErrInfeasible, phase, plan.Minimum.Seconds(), available.Seconds())
	}
	if plan.Default < available {
		return plan.Default, nil
	}
	return available, nil
}
