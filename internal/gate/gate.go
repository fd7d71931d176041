// Package gate turns a strategy's confidence score into an accept / try
// the next strategy / manual review decision, so extraction strategies can
// be added or reordered without touching decision logic.
package gate

import "fmt"

// Decision is the outcome of gating one extraction candidate.
type Decision int

const (
	// TryNext defers to the next, costlier strategy in the chain.
	TryNext Decision = iota
	// Accept short-circuits remaining strategies; the value may be applied.
	Accept
	// Review flags the value for manual handling instead of automatic
	// application.
	Review
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case TryNext:
		return "try_next"
	case Review:
		return "review"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Thresholds are domain constants, not computed values. An explicit
// self-introduction match is near-certain and accepts without a paid
// remote call; a lone capitalized word is weak and defers.
const (
	// AcceptThreshold short-circuits remaining strategies.
	AcceptThreshold = 0.85
	// ReviewThreshold is the floor below which a value is never applied
	// automatically.
	ReviewThreshold = 0.40
	// ApplyThreshold is the weaker bar consuming workflows use when
	// deciding to write an already-extracted value.
	ApplyThreshold = 0.60
)

// Decide gates a confidence score against the given thresholds. Pure and
// stateless; it never invokes a strategy itself.
func Decide(confidence, accept, review float64) Decision {
	if confidence >= accept {
		return Accept
	}
	if confidence < review {
		return Review
	}
	return TryNext
}
