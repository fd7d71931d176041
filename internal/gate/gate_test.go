package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       Decision
	}{
		{"explicit introduction", 0.95, Accept},
		{"exactly accept threshold", 0.85, Accept},
		{"just under accept", 0.8499, TryNext},
		{"middling heuristic", 0.65, TryNext},
		{"exactly review threshold", 0.40, TryNext},
		{"weak signal", 0.39, Review},
		{"no signal", 0.0, Review},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.confidence, AcceptThreshold, ReviewThreshold))
		})
	}
}

func TestDecide_NeverAcceptsBelowThreshold(t *testing.T) {
	for c := 0.0; c < AcceptThreshold; c += 0.01 {
		assert.NotEqual(t, Accept, Decide(c, AcceptThreshold, ReviewThreshold), "confidence %f", c)
	}
}

func TestDecide_NeverReviewsAtOrAboveAccept(t *testing.T) {
	for c := AcceptThreshold; c <= 1.0; c += 0.01 {
		assert.Equal(t, Accept, Decide(c, AcceptThreshold, ReviewThreshold), "confidence %f", c)
	}
}

func TestDecide_CustomThresholds(t *testing.T) {
	// A consuming workflow with a weaker apply bar.
	assert.Equal(t, Accept, Decide(0.70, ApplyThreshold, ReviewThreshold))
	assert.Equal(t, TryNext, Decide(0.50, ApplyThreshold, ReviewThreshold))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "try_next", TryNext.String())
	assert.Equal(t, "review", Review.String())
}
