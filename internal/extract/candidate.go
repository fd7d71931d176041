// Package extract pulls contact fields (names, emails, country) out of
// WhatsApp conversation text using tiered strategies ordered
// cheap-to-expensive: regex patterns, capitalization heuristics, then a
// paid AI call. A confidence gate decides when a cheaper strategy's answer
// is good enough to skip the rest.
package extract

import "context"

// Method tags which strategy produced a candidate.
type Method string

const (
	MethodPattern   Method = "pattern"
	MethodHeuristic Method = "heuristic"
	MethodAI        Method = "ai"
	MethodUnknown   Method = "unknown"
)

// Candidate is one strategy's proposed value for a contact's name, with
// the confidence the gate uses to accept, defer, or flag it. Candidates
// never outlive the extraction call that produced them.
type Candidate struct {
	FullName   string
	FirstName  string
	LastName   string
	Confidence float64
	Method     Method
}

// Found reports whether the strategy produced any value at all.
func (c Candidate) Found() bool {
	return c.FullName != ""
}

// Strategy produces a name candidate from conversation messages. Local
// strategies ignore ctx; the remote strategy must honor its deadline.
type Strategy interface {
	Method() Method
	Extract(ctx context.Context, messages []string) (Candidate, error)
}
