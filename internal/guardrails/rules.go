package guardrails

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Ruleset holds phrase-list overrides for the built-in rule tables. An
// empty list leaves the built-in phrases for that category in place.
type Ruleset struct {
	MedicalAdvice     []string `yaml:"medical_advice"`
	PricingCommitment []string `yaml:"pricing_commitment"`
	UnsafeReassurance []string `yaml:"unsafe_reassurance"`
}

// LoadRules reads a phrase-override file.
func LoadRules(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "guardrails: read rules %s", path)
	}
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrapf(err, "guardrails: parse rules %s", path)
	}
	return &rs, nil
}

// ApplyRules swaps override phrase lists into the rule tables. Must be
// called once at startup, before any concurrent scanning.
func ApplyRules(rs *Ruleset) {
	for i := range ruleTable {
		switch ruleTable[i].category {
		case CategoryMedicalAdvice:
			if len(rs.MedicalAdvice) > 0 {
				ruleTable[i].phrases = rs.MedicalAdvice
			}
		case CategoryPricingCommitment:
			if len(rs.PricingCommitment) > 0 {
				ruleTable[i].phrases = rs.PricingCommitment
			}
		case CategoryUnsafeReassurance:
			if len(rs.UnsafeReassurance) > 0 {
				ruleTable[i].phrases = rs.UnsafeReassurance
			}
		}
	}
}
