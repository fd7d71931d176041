// Package budget tracks the wall-clock allowance of a single inbound
// request and plans per-phase timeouts against what remains of it.
package budget

import (
	"errors"
	"fmt"
	"time"
)

// ErrExceeded signals that the request's total time allowance is spent.
// It is distinct from any provider error: callers must abort the pipeline
// and return the best degraded response available, never attempt further
// remote calls.
var ErrExceeded = errors.New("budget: time allowance exceeded")

// Budget tracks elapsed time against a fixed total allowance for one
// inbound request. It is created once per request, read by every stage,
// and never mutated except by the passage of time.
type Budget struct {
	start     time.Time
	allowance time.Duration
	buffer    time.Duration
	now       func() time.Time // injectable for testing
}

// New starts a budget clock immediately. The buffer is reserved headroom
// that phase planning never hands out to a remote call.
func New(allowance, buffer time.Duration) *Budget {
	return &Budget{
		start:     time.Now(),
		allowance: allowance,
		buffer:    buffer,
		now:       time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (b *Budget) WithNow(now func() time.Time) *Budget {
	b.now = now
	b.start = now()
	return b
}

// Elapsed returns time spent since the budget started.
func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// Remaining returns the unspent allowance. It may go negative once the
// deadline has passed; callers must check before assuming it is positive.
func (b *Budget) Remaining() time.Duration {
	return b.allowance - b.Elapsed()
}

// Buffer returns the reserved safety headroom.
func (b *Budget) Buffer() time.Duration {
	return b.buffer
}

// Exceeded reports whether the allowance is spent.
func (b *Budget) Exceeded() bool {
	return b.Remaining() <= 0
}

// Check returns ErrExceeded if the allowance is spent. It is the single
// chokepoint to call between pipeline stages, before starting a new remote
// call — never mid-call, since in-flight calls cannot be shortened after
// the fact.
func (b *Budget) Check() error {
	if b.Exceeded() {
		return fmt.Errorf("%w: %.1fs elapsed, %.1fs allowed",
			ErrExceeded, b.Elapsed().Seconds(), b.allowance.Seconds())
	}
	return nil
}

// String summarizes the budget state for logging.
func (b *Budget) String() string {
	return fmt.Sprintf("elapsed=%.1fs remaining=%.1fs", b.Elapsed().Seconds(), b.Remaining().Seconds())
}
