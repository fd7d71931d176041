package extract

import (
	"context"
	"strings"
)

// PatternStrategy matches explicit Spanish self-introductions and
// form-like labels. It is free and runs first in the chain.
type PatternStrategy struct{}

func (PatternStrategy) Method() Method { return MethodPattern }

// Extract scans recent messages joined together. An explicit introduction
// ("me llamo X") scores 0.95; form labels, greetings, and signatures
// score 0.75.
func (PatternStrategy) Extract(_ context.Context, messages []string) (Candidate, error) {
	joined := joinRecent(messages, 50)

	for _, p := range introPatterns {
		if m := p.FindStringSubmatch(joined); m != nil {
			return newCandidate(m[1], 0.95, MethodPattern), nil
		}
	}
	for _, p := range formPatterns {
		if m := p.FindStringSubmatch(joined); m != nil {
			return newCandidate(m[1], 0.75, MethodPattern), nil
		}
	}

	return Candidate{Method: MethodUnknown}, nil
}

func newCandidate(fullName string, confidence float64, method Method) Candidate {
	first, last := SplitFullName(fullName)
	return Candidate{
		FullName:   fullName,
		FirstName:  first,
		LastName:   last,
		Confidence: confidence,
		Method:     method,
	}
}

func joinRecent(messages []string, n int) string {
	return strings.Join(limitMessages(messages, n), " ")
}
