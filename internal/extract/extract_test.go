package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinica-duran/eva/internal/budget"
	"github.com/clinica-duran/eva/internal/gate"
)

func TestPatternStrategy_ExplicitIntroduction(t *testing.T) {
	c, err := PatternStrategy{}.Extract(context.Background(),
		[]string{"Hola, me llamo Juan Pérez y quiero información"})
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez", c.FullName)
	assert.Equal(t, "Juan", c.FirstName)
	assert.Equal(t, "Pérez", c.LastName)
	assert.InDelta(t, 0.95, c.Confidence, 1e-9)
	assert.Equal(t, MethodPattern, c.Method)
}

func TestPatternStrategy_FormLabel(t *testing.T) {
	c, err := PatternStrategy{}.Extract(context.Background(),
		[]string{"Paciente: María García López"})
	require.NoError(t, err)
	assert.Equal(t, "María García López", c.FullName)
	assert.InDelta(t, 0.75, c.Confidence, 1e-9)
}

func TestPatternStrategy_NoMatch(t *testing.T) {
	c, err := PatternStrategy{}.Extract(context.Background(),
		[]string{"quiero agendar una cita para mañana"})
	require.NoError(t, err)
	assert.False(t, c.Found())
}

func TestHeuristicStrategy_Greeting(t *testing.T) {
	c, err := HeuristicStrategy{}.Extract(context.Background(),
		[]string{"Hola, soy Ana Torres"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Torres", c.FullName)
	assert.InDelta(t, 0.75, c.Confidence, 1e-9)
	assert.Equal(t, MethodHeuristic, c.Method)
}

func TestHeuristicStrategy_CapitalizedRun(t *testing.T) {
	c, err := HeuristicStrategy{}.Extract(context.Background(),
		[]string{"la cita es para Carlos Ramírez el lunes"})
	require.NoError(t, err)
	assert.Equal(t, "Carlos Ramírez", c.FullName)
	assert.InDelta(t, 0.65, c.Confidence, 1e-9)
}

func TestHeuristicStrategy_RejectsInvalidParts(t *testing.T) {
	c, err := HeuristicStrategy{}.Extract(context.Background(),
		[]string{"mi usuario es PEDRO123 GOMEZ99"})
	require.NoError(t, err)
	assert.False(t, c.Found())
}

// stubStrategy is a canned local strategy for chain tests.
type stubStrategy struct {
	method    Method
	candidate Candidate
	called    int
}

func (s *stubStrategy) Method() Method { return s.method }
func (s *stubStrategy) Extract(_ context.Context, _ []string) (Candidate, error) {
	s.called++
	return s.candidate, nil
}

func named(method Method, confidence float64) Candidate {
	c := newCandidate("Juan Pérez", confidence, method)
	return c
}

func extractBudget() *budget.Budget {
	return budget.New(9*time.Minute, 500*time.Millisecond)
}

func TestRun_ConfidentPatternSkipsRemoteStrategies(t *testing.T) {
	// Scenario: "me llamo Juan Pérez" matches at 0.95; the paid strategy
	// must never be invoked.
	ai := &stubStrategy{method: MethodAI, candidate: named(MethodAI, 0.9)}
	strategies := []Strategy{PatternStrategy{}, HeuristicStrategy{}, ai}

	out, err := Run(context.Background(), extractBudget(),
		[]string{"me llamo Juan Pérez"}, strategies, gate.AcceptThreshold, gate.ReviewThreshold)
	require.NoError(t, err)
	assert.Equal(t, gate.Accept, out.Decision)
	assert.Equal(t, "Juan Pérez", out.Best.FullName)
	assert.Equal(t, MethodPattern, out.Best.Method)
	assert.False(t, out.UsedFallback)
	assert.Equal(t, 0, ai.called, "remote strategy skipped after confident pattern match")
}

func TestRun_BestCandidateWinsBelowAccept(t *testing.T) {
	// Scenario: pattern and heuristic both 0.5, AI 0.8 — final result
	// uses the AI candidate.
	pattern := &stubStrategy{method: MethodPattern, candidate: named(MethodPattern, 0.5)}
	heuristic := &stubStrategy{method: MethodHeuristic, candidate: named(MethodHeuristic, 0.5)}
	ai := &stubStrategy{method: MethodAI, candidate: named(MethodAI, 0.8)}

	out, err := Run(context.Background(), extractBudget(), []string{"hola"},
		[]Strategy{pattern, heuristic, ai}, gate.AcceptThreshold, gate.ReviewThreshold)
	require.NoError(t, err)
	assert.Equal(t, MethodAI, out.Best.Method)
	assert.InDelta(t, 0.8, out.Best.Confidence, 1e-9)
	assert.Equal(t, gate.Review, out.Decision, "below accept threshold is never auto-applied")
	assert.True(t, out.UsedFallback)
	assert.Len(t, out.Attempts, 3)
}

func TestRun_NothingFound(t *testing.T) {
	out, err := Run(context.Background(), extractBudget(), []string{"ok"},
		[]Strategy{PatternStrategy{}, HeuristicStrategy{}}, gate.AcceptThreshold, gate.ReviewThreshold)
	require.NoError(t, err)
	assert.Equal(t, gate.Review, out.Decision)
	assert.False(t, out.Best.Found())
}

func TestRun_BudgetExceededAborts(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := budget.New(8500*time.Millisecond, 500*time.Millisecond).
		WithNow(func() time.Time { clock = clock.Add(10 * time.Second); return clock })

	pattern := &stubStrategy{method: MethodPattern, candidate: named(MethodPattern, 0.95)}
	_, err := Run(context.Background(), b, []string{"hola"},
		[]Strategy{pattern}, gate.AcceptThreshold, gate.ReviewThreshold)
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrExceeded)
	assert.Equal(t, 0, pattern.called)
}

func TestSplitFullName(t *testing.T) {
	tests := []struct {
		in    string
		first string
		last  string
	}{
		{"Juan Pérez", "Juan", "Pérez"},
		{"María García López", "María", "García López"},
		{"Ana Sofía Rodríguez Martínez", "Ana Sofía", "Rodríguez Martínez"},
		{"Juan", "Juan", ""},
		{"  Juan   Pérez  ", "Juan", "Pérez"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitFullName(tt.in)
		assert.Equal(t, tt.first, first, "input %q", tt.in)
		assert.Equal(t, tt.last, last, "input %q", tt.in)
	}
}

func TestIsValidName(t *testing.T) {
	assert.True(t, IsValidName("María"))
	assert.True(t, IsValidName("Ana"))
	assert.False(t, IsValidName("M"), "too short")
	assert.False(t, IsValidName("USUARIO"), "all uppercase")
	assert.False(t, IsValidName("user123"), "contains digits")
	assert.False(t, IsValidName(""), "empty")
}

func TestCleanDisplayName(t *testing.T) {
	assert.Equal(t, "Ana", CleanDisplayName("Ana 💕"))
	assert.Equal(t, "", CleanDisplayName("💕🌺"))
	assert.Equal(t, "Juan Pérez", CleanDisplayName("  Juan   Pérez "))
}

func TestIsOnlyEmojis(t *testing.T) {
	assert.True(t, IsOnlyEmojis("💕🌺"))
	assert.False(t, IsOnlyEmojis("Ana 💕"))
	assert.False(t, IsOnlyEmojis(""))
	assert.False(t, IsOnlyEmojis("Ana"))
}

func TestIsLikelyUsername(t *testing.T) {
	assert.True(t, IsLikelyUsername("maria.garcia"))
	assert.True(t, IsLikelyUsername("user_123"))
	assert.False(t, IsLikelyUsername("María García"))
	assert.False(t, IsLikelyUsername("ab"))
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com",
		ExtractEmail([]string{"mi correo es Ana@Example.com gracias"}))
	assert.Equal(t, "", ExtractEmail([]string{"no tengo correo"}))
}

func TestCountryFromPhone(t *testing.T) {
	tests := []struct {
		phone   string
		country string
	}{
		{"+573001234567", "Colombia"},
		{"+5215512345678", "México"},
		{"+593991234567", "Ecuador"},
		{"+12125551234", "Estados Unidos"},
		{"573001234567", "Colombia"},
		{"+999", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.country, CountryFromPhone(tt.phone), "phone %s", tt.phone)
	}
}

func TestFoldDiacritics(t *testing.T) {
	assert.Equal(t, "Jose Maria", FoldDiacritics("José María"))
	assert.Equal(t, "Munoz", FoldDiacritics("Muñoz"))
}
