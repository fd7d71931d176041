package guardrails

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	yaml := `
medical_advice:
  - "te receto"
  - "debes operarte"
pricing_commitment:
  - "cuesta $"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	rs, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"te receto", "debes operarte"}, rs.MedicalAdvice)
	assert.Equal(t, []string{"cuesta $"}, rs.PricingCommitment)
	assert.Empty(t, rs.UnsafeReassurance)
}

func TestLoadRules_Missing(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read rules")
}

func TestLoadRules_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("medical_advice: {not a list"), 0o644))

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse rules")
}

func TestApplyRules_OverridesOnlyNonEmpty(t *testing.T) {
	orig := make([]struct {
		category Category
		phrases  []string
	}, len(ruleTable))
	copy(orig, ruleTable)
	t.Cleanup(func() { copy(ruleTable, orig) })

	ApplyRules(&Ruleset{MedicalAdvice: []string{"frase nueva"}})

	v := Scan("esto contiene la frase nueva")
	assert.False(t, v.Safe)
	assert.True(t, v.Has(CategoryMedicalAdvice))

	// Old medical phrases no longer match after override.
	assert.True(t, Scan("te receto este medicamento").Safe)

	// Untouched categories keep their built-in phrases.
	assert.True(t, Scan("el precio es $50").Has(CategoryPricingCommitment))
}
