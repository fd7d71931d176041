package extract

import "context"

// HeuristicStrategy looks for greeting shapes and runs of capitalized
// words, message by message. Free but weaker evidence than an explicit
// pattern, so its candidates score lower and usually defer to the AI
// strategy through the gate.
type HeuristicStrategy struct{}

func (HeuristicStrategy) Method() Method { return MethodHeuristic }

// Extract checks the first 20 messages. Greeting matches score 0.75;
// bare capitalized runs 0.65. Both parts of the split name must pass
// validation, which filters handles and shouting.
func (HeuristicStrategy) Extract(_ context.Context, messages []string) (Candidate, error) {
	for _, msg := range limitMessages(messages, 20) {
		for _, p := range greetingPatterns {
			if m := p.FindStringSubmatch(msg); m != nil {
				if c := validatedCandidate(m[1], 0.75); c.Found() {
					return c, nil
				}
			}
		}

		for _, run := range capitalizedRun.FindAllString(msg, -1) {
			if c := validatedCandidate(run, 0.65); c.Found() {
				return c, nil
			}
		}
	}

	return Candidate{Method: MethodUnknown}, nil
}

func validatedCandidate(fullName string, confidence float64) Candidate {
	c := newCandidate(fullName, confidence, MethodHeuristic)
	if !IsValidName(c.FirstName) || !IsValidName(c.LastName) {
		return Candidate{Method: MethodUnknown}
	}
	return c
}
