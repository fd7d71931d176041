// Package guardrails scans generated replies for content the assistant
// must never send on its own — medical advice, price commitments, unsafe
// reassurance — classifies a severity, and substitutes a safe reply that
// redirects to a human.
package guardrails

import "strings"

// Category tags one rule list.
type Category string

const (
	CategoryMedicalAdvice     Category = "medical_advice"
	CategoryPricingCommitment Category = "pricing_commitment"
	CategoryUnsafeReassurance Category = "unsafe_reassurance"
)

// Severity is the escalation tier for a scanned reply.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Violation records one matched phrase and its category.
type Violation struct {
	Category Category
	Phrase   string
}

// Verdict is the outcome of scanning one generated reply. It is derived
// deterministically from the text and the fixed rule tables; the same
// text always produces the same verdict.
type Verdict struct {
	Safe       bool
	Violations []Violation
	Severity   Severity
}

// Categories returns the distinct matched categories.
func (v Verdict) Categories() []Category {
	seen := make(map[Category]bool, 3)
	var out []Category
	for _, viol := range v.Violations {
		if !seen[viol.Category] {
			seen[viol.Category] = true
			out = append(out, viol.Category)
		}
	}
	return out
}

// Has reports whether any violation in the verdict matched the category.
func (v Verdict) Has(c Category) bool {
	for _, viol := range v.Violations {
		if viol.Category == c {
			return true
		}
	}
	return false
}

// medicalAdvicePhrases flag diagnosis, prescription, or directive medical
// recommendations (Spanish).
var medicalAdvicePhrases = []string{
	// Diagnosis
	"diagnóstico",
	"diagnostico",
	"padeces",
	"sufres de",
	"condición médica",
	"condicion medica",
	"síntoma de",
	"sintoma de",

	// Prescription
	"prescripción",
	"prescripcion",
	"receta",
	"medicamento",
	"debes tomar",
	"te receto",
	"antibiótico",
	"antibiotico",
	"analgésico",
	"analgesico",

	// Directive recommendations
	"te recomiendo que",
	"es necesario que",
	"emergencia médica",
	"emergencia medica",
	"acude al hospital",
	"llama una ambulancia",
}

// pricingPhrases flag commitments to specific prices or payment plans.
var pricingPhrases = []string{
	"cuesta $",
	"precio de $",
	"precio es $",
	"valor de $",
	"son $",
	"costo de $",
	"cuota de $",
	"total de $",
	"pago de $",
	"tarifa de $",
	"financiación",
	"financiacion",
	"plan de pagos",
	"cuotas de",
}

// unsafeReassurancePhrases flag advice that discourages seeing a doctor.
var unsafeReassurancePhrases = []string{
	"no es necesario consultar",
	"no necesitas ir al médico",
	"no necesitas ir al medico",
	"no te preocupes",
	"no pasa nada",
	"no es grave",
}

var ruleTable = []struct {
	category Category
	phrases  []string
}{
	{CategoryMedicalAdvice, medicalAdvicePhrases},
	{CategoryPricingCommitment, pricingPhrases},
	{CategoryUnsafeReassurance, unsafeReassurancePhrases},
}

// Scan matches a generated reply against every rule category. A text may
// match several categories and several phrases within one category.
// Severity: medical advice or unsafe reassurance is critical, else a
// pricing commitment is high, else any match is medium, else none.
func Scan(reply string) Verdict {
	lower := strings.ToLower(reply)

	var violations []Violation
	for _, rules := range ruleTable {
		for _, phrase := range rules.phrases {
			if strings.Contains(lower, phrase) {
				violations = append(violations, Violation{Category: rules.category, Phrase: phrase})
			}
		}
	}

	v := Verdict{
		Safe:       len(violations) == 0,
		Violations: violations,
	}
	switch {
	case v.Has(CategoryMedicalAdvice) || v.Has(CategoryUnsafeReassurance):
		v.Severity = SeverityCritical
	case v.Has(CategoryPricingCommitment):
		v.Severity = SeverityHigh
	case len(violations) > 0:
		v.Severity = SeverityMedium
	default:
		v.Severity = SeverityNone
	}
	return v
}

// SafeFallback returns the fixed replacement reply for a severity.
// SeverityNone returns the empty string: the original reply passes
// through unchanged.
func SafeFallback(s Severity) string {
	switch s {
	case SeverityCritical:
		return "Para brindarte información precisa sobre tu situación específica, necesito que hables " +
			"directamente con el Dr. Durán o uno de nuestros asesores especializados. " +
			"¿Te conecto con un asesor ahora?"
	case SeverityHigh:
		return "Para darte información exacta sobre precios y opciones de pago, necesito que hables " +
			"con uno de nuestros asesores. Ellos podrán ofrecerte una cotización personalizada. " +
			"¿Te conecto con un asesor?"
	case SeverityMedium:
		return "Para asegurarme de darte la mejor información, prefiero que hables directamente " +
			"con uno de nuestros especialistas. ¿Te conecto con un asesor?"
	default:
		return ""
	}
}

// AuditResult aggregates verdicts over a conversation's messages.
type AuditResult struct {
	TotalMessages      int
	ViolationCount     int
	CriticalViolations int
	Flagged            []FlaggedMessage
}

// FlaggedMessage records one unsafe message and its verdict.
type FlaggedMessage struct {
	Index   int
	Verdict Verdict
}

// Audit scans a list of messages for post-conversation compliance review.
func Audit(messages []string) AuditResult {
	result := AuditResult{TotalMessages: len(messages)}
	for i, msg := range messages {
		v := Scan(msg)
		if v.Safe {
			continue
		}
		result.ViolationCount++
		if v.Severity == SeverityCritical {
			result.CriticalViolations++
		}
		result.Flagged = append(result.Flagged, FlaggedMessage{Index: i, Verdict: v})
	}
	return result
}
