// Package chain runs an ordered list of interchangeable providers for one
// capability, advancing to the next provider on failure or timeout and
// stopping at the first success.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinica-duran/eva/internal/budget"
)

// Provider is one concrete implementation of a capability, substitutable
// within a chain. Call must honor ctx cancellation: the deadline computed
// from the provider's phase is enforced cooperatively, not by expectation.
type Provider[T any] interface {
	Name() string
	Phase() budget.Phase
	Call(ctx context.Context) (T, error)
}

// Result carries a successful attempt's payload and its provenance.
type Result[T any] struct {
	Value        T
	Provider     string
	UsedFallback bool
	Elapsed      time.Duration
}

// attemptFailure records why one provider did not answer.
type attemptFailure struct {
	Provider string
	Err      error
}

// AllFailedError aggregates every provider's failure reason so a single
// log line explains the whole chain, not just the last attempt.
type AllFailedError struct {
	Capability string
	Failures   []attemptFailure
}

func (e *AllFailedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "chain: all providers failed for %s", e.Capability)
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, "; %s: %v", f.Provider, f.Err)
	}
	return sb.String()
}

// Unwrap exposes the underlying errors for errors.Is checks, so an
// infeasible-phase stop is distinguishable from exhausted providers.
func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Funcs adapts a bare function into a Provider.
type Funcs[T any] struct {
	ProviderName  string
	ProviderPhase budget.Phase
	Fn            func(ctx context.Context) (T, error)
}

func (f Funcs[T]) Name() string        { return f.ProviderName }
func (f Funcs[T]) Phase() budget.Phase { return f.ProviderPhase }

func (f Funcs[T]) Call(ctx context.Context) (T, error) {
	return f.Fn(ctx)
}

// Attempt tries providers in order. Per attempt it checks the overall
// budget, plans the provider's phase timeout, and invokes the provider
// under context.WithTimeout. A phase timeout expiry is indistinguishable
// from a provider error: both advance the chain. The same provider is
// never retried — the budget rarely affords a second identical attempt.
//
// Terminal conditions:
//   - budget.ErrExceeded: aborts immediately, no further fallbacks.
//   - budget.ErrInfeasible: stops the chain; the reason is folded into the
//     returned AllFailedError alongside earlier failures.
//   - chain exhausted: AllFailedError aggregating every reason.
func Attempt[T any](ctx context.Context, capability string, b *budget.Budget, providers []Provider[T]) (*Result[T], error) {
	if len(providers) == 0 {
		return nil, &AllFailedError{Capability: capability}
	}

	var failures []attemptFailure
	for i, p := range providers {
		if err := b.Check(); err != nil {
			return nil, err
		}

		timeout, err := budget.Plan(b, p.Phase())
		if err != nil {
			if errors.Is(err, budget.ErrInfeasible) {
				failures = append(failures, attemptFailure{Provider: p.Name(), Err: err})
				return nil, &AllFailedError{Capability: capability, Failures: failures}
			}
			return nil, err
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		value, err := p.Call(callCtx)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			if i > 0 {
				zap.L().Info("chain: fallback provider answered",
					zap.String("capability", capability),
					zap.String("provider", p.Name()),
					zap.Duration("elapsed", elapsed),
				)
			}
			return &Result[T]{
				Value:        value,
				Provider:     p.Name(),
				UsedFallback: i > 0,
				Elapsed:      elapsed,
			}, nil
		}

		zap.L().Warn("chain: provider failed, trying next",
			zap.String("capability", capability),
			zap.String("provider", p.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		failures = append(failures, attemptFailure{Provider: p.Name(), Err: err})
	}

	return nil, &AllFailedError{Capability: capability, Failures: failures}
}
