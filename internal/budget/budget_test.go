package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns a controllable now func anchored at a fixed instant.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestBudget_RemainingDecreases(t *testing.T) {
	clock := newFakeClock()
	b := New(8500*time.Millisecond, 500*time.Millisecond).WithNow(clock.now)

	assert.Equal(t, 8500*time.Millisecond, b.Remaining())

	prev := b.Remaining()
	for i := 0; i < 5; i++ {
		clock.advance(1 * time.Second)
		cur := b.Remaining()
		assert.Less(t, cur, prev, "remaining must strictly decrease as time advances")
		prev = cur
	}
}

func TestBudget_Exceeded(t *testing.T) {
	clock := newFakeClock()
	b := New(8500*time.Millisecond, 500*time.Millisecond).WithNow(clock.now)

	assert.False(t, b.Exceeded())
	require.NoError(t, b.Check())

	clock.advance(8500 * time.Millisecond)
	assert.True(t, b.Exceeded(), "remaining == 0 is exceeded")

	clock.advance(1 * time.Second)
	assert.True(t, b.Exceeded())
	assert.Negative(t, b.Remaining())

	err := b.Check()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExceeded))
}

func TestBudget_ElapsedMonotonic(t *testing.T) {
	clock := newFakeClock()
	b := New(25*time.Second, 500*time.Millisecond).WithNow(clock.now)

	assert.Equal(t, time.Duration(0), b.Elapsed())
	clock.advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, b.Elapsed())
	clock.advance(30 * time.Second)
	assert.Equal(t, 33*time.Second, b.Elapsed())
}

func TestPlan_DefaultWhenAmpleBudget(t *testing.T) {
	// Scenario: 8.5s budget, 0.5s buffer, 2s elapsed at primary
	// transcription — 6s available covers the 3s default.
	clock := newFakeClock()
	b := New(8500*time.Millisecond, 500*time.Millisecond).WithNow(clock.now)
	clock.advance(2000 * time.Millisecond)

	timeout, err := Plan(b, PhasePrimaryTranscribe)
	require.NoError(t, err)
	assert.Equal(t, 3000*time.Millisecond, timeout)
}

func TestPlan_InfeasibleBelowMinimum(t *testing.T) {
	// Scenario: 6.5s elapsed at fallback transcription — 1.5s available
	// is below the 2.5s floor.
	clock := newFakeClock()
	b := New(8500*time.Millisecond, 500*time.Millisecond).WithNow(clock.now)
	clock.advance(6500 * time.Millisecond)

	_, err := Plan(b, PhaseFallbackTranscribe)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))
}

func TestPlan_ClipsToAvailable(t *testing.T) {
	clock := newFakeClock()
	b := New(8500*time.Millisecond, 500*time.Millisecond).WithNow(clock.now)
	clock.advance(6000 * time.Millisecond)

	// 2s available, default 3s: clip, never exceed remaining - buffer.
	timeout, err := Plan(b, PhasePrimaryTranscribe)
	require.NoError(t, err)
	assert.Equal(t, 2000*time.Millisecond, timeout)
	assert.LessOrEqual(t, timeout, b.Remaining()-b.Buffer())
}

func TestPlan_ExactMinimumIsFeasible(t *testing.T) {
	clock := newFakeClock()
	b := New(8500*time.Millisecond, 500*time.Millisecond).WithNow(clock.now)
	// available = 8500 - 5500 - 500 = 2500 = fallback minimum exactly.
	clock.advance(5500 * time.Millisecond)

	timeout, err := Plan(b, PhaseFallbackTranscribe)
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, timeout)
}

func TestPlan_NeverExceedsAvailable(t *testing.T) {
	for _, phase := range []Phase{
		PhasePrimaryTranscribe, PhaseFallbackTranscribe, PhasePostProcess,
		PhaseVisionExtract, PhaseClassify, PhaseReplyGenerate, PhaseNameExtract,
	} {
		for _, elapsed := range []time.Duration{0, 1 * time.Second, 3 * time.Second, 5 * time.Second, 7 * time.Second} {
			clock := newFakeClock()
			b := New(8500*time.Millisecond, 500*time.Millisecond).WithNow(clock.now)
			clock.advance(elapsed)

			timeout, err := Plan(b, phase)
			if err != nil {
				assert.True(t, errors.Is(err, ErrInfeasible))
				continue
			}
			assert.LessOrEqual(t, timeout, b.Remaining()-b.Buffer(),
				"phase %s elapsed %s", phase, elapsed)
		}
	}
}

func TestPlan_UnknownPhase(t *testing.T) {
	b := New(8500*time.Millisecond, 500*time.Millisecond)
	_, err := Plan(b, Phase("bogus"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInfeasible))
}
