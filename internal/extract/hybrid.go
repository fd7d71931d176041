package extract

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/budget"
	"github.com/clinica-duran/eva/internal/gate"
)

// Outcome is the result of running the gated strategy chain for one
// contact.
type Outcome struct {
	// Best is the winning candidate: the first accepted one, or the
	// highest-confidence attempt when nothing cleared the accept bar.
	Best Candidate
	// Decision is Accept when Best cleared the accept threshold, Review
	// otherwise — a Review outcome routes to manual handling, never
	// silent auto-application.
	Decision gate.Decision
	// Attempts records every strategy's candidate for provenance.
	Attempts []Candidate
	// UsedFallback is true when a non-first strategy produced Best.
	UsedFallback bool
}

// phased is implemented by strategies whose work is a remote call that
// must be planned against the budget.
type phased interface {
	Phase() budget.Phase
}

// Phase marks AIStrategy as a budget-planned remote call.
func (s *AIStrategy) Phase() budget.Phase { return budget.PhaseNameExtract }

// Run executes strategies cheap-to-expensive over the conversation,
// consulting the gate after each so a confident early answer skips later,
// costlier strategies. Remote strategies get a planned phase timeout and
// are skipped (not attempted doomed) when their phase is infeasible. An
// exceeded overall budget aborts with budget.ErrExceeded. Strategy errors
// advance the chain; they never fail the extraction.
func Run(ctx context.Context, b *budget.Budget, messages []string, strategies []Strategy, acceptThr, reviewThr float64) (Outcome, error) {
	var (
		attempts  []Candidate
		best      Candidate
		bestIndex int
	)

	for i, s := range strategies {
		if err := b.Check(); err != nil {
			return Outcome{}, err
		}

		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p, ok := s.(phased); ok {
			timeout, err := budget.Plan(b, p.Phase())
			if err != nil {
				if errors.Is(err, budget.ErrInfeasible) {
					zap.L().Info("extract: skipping strategy, phase infeasible",
						zap.String("method", string(s.Method())),
						zap.String("budget", b.String()),
					)
					continue
				}
				return Outcome{}, err
			}
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		candidate, err := s.Extract(callCtx, messages)
		cancel()
		if err != nil {
			zap.L().Warn("extract: strategy failed, trying next",
				zap.String("method", string(s.Method())),
				zap.Error(err),
			)
			continue
		}
		if !candidate.Found() {
			continue
		}

		attempts = append(attempts, candidate)
		if candidate.Confidence > best.Confidence {
			best = candidate
			bestIndex = i
		}

		if gate.Decide(candidate.Confidence, acceptThr, reviewThr) == gate.Accept {
			return Outcome{
				Best:         candidate,
				Decision:     gate.Accept,
				Attempts:     attempts,
				UsedFallback: i > 0,
			}, nil
		}
	}

	// Nothing cleared the accept bar: the best surviving candidate is
	// flagged for review rather than applied.
	return Outcome{
		Best:         best,
		Decision:     gate.Review,
		Attempts:     attempts,
		UsedFallback: best.Found() && bestIndex > 0,
	}, nil
}

// DefaultStrategies is the production chain order: free pattern rules,
// free capitalization heuristics, then the paid AI call.
func DefaultStrategies(ai *AIStrategy) []Strategy {
	return []Strategy{PatternStrategy{}, HeuristicStrategy{}, ai}
}
