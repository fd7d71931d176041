package extract

import "regexp"

// Canonical rule tables. The pattern, heuristic, and cleaning code all
// reference these single definitions; near-duplicates with drifting
// Unicode ranges are exactly the bug this file exists to prevent.

// emojiPattern matches emoji and pictographic symbols for display-name
// cleaning. Covers the main emoji blocks plus regional indicators and the
// common legacy symbols.
var emojiPattern = regexp.MustCompile(`[\x{1F300}-\x{1F5FF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{1F700}-\x{1F77F}\x{1F780}-\x{1F7FF}\x{1F800}-\x{1F8FF}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FA6F}\x{1FA70}-\x{1FAFF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{1F1E6}-\x{1F1FF}\x{1F004}\x{1F0CF}\x{2B05}-\x{2B07}\x{2B1B}-\x{2B1C}\x{2B50}\x{2B55}\x{3030}\x{303D}\x{3297}\x{3299}\x{00A9}\x{00AE}\x{2122}\x{200D}\x{FE0F}\x{2640}\x{2642}\x{2695}\x{2696}\x{2708}\x{2709}\x{270A}-\x{270D}\x{2728}\x{2744}\x{2747}\x{274C}\x{274E}\x{2753}-\x{2755}\x{2757}\x{2763}-\x{2764}\x{2795}-\x{2797}\x{27A1}\x{27B0}]`)

// emailPattern is a simplified RFC 5322 matcher.
var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// phoneCodeCountry maps E.164 dialing prefixes to country names (LATAM
// plus the clinic's other common origins). Longer prefixes are matched
// before shorter ones.
var phoneCodeCountry = map[string]string{
	"+593": "Ecuador",
	"+591": "Bolivia",
	"+595": "Paraguay",
	"+598": "Uruguay",
	"+507": "Panamá",
	"+506": "Costa Rica",
	"+503": "El Salvador",
	"+502": "Guatemala",
	"+504": "Honduras",
	"+505": "Nicaragua",
	"+57":  "Colombia",
	"+52":  "México",
	"+54":  "Argentina",
	"+56":  "Chile",
	"+51":  "Perú",
	"+58":  "Venezuela",
	"+34":  "España",
	"+1":   "Estados Unidos",
}

// namePart matches one capitalized Spanish name word.
const namePart = `[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+`

// nameSeq matches two to four capitalized words (name plus apellidos).
const nameSeq = namePart + `(?:\s+` + namePart + `){1,3}`

// introPatterns match explicit self-introductions. A hit here is
// near-certain and accepts without a paid remote call.
var introPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:me llamo|mi nombre es|soy)\s+(` + nameSeq + `)`),
	regexp.MustCompile(`(?i)\b(?:puede llamarme|llamarme|decirme)\s+(` + nameSeq + `)`),
}

// formPatterns match form-like labels and greeting/signature shapes;
// weaker evidence than an explicit introduction.
var formPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:nombre:?|paciente:?|cliente:?)\s*(` + nameSeq + `)`),
	regexp.MustCompile(`(?im)^(?:hola|buenos días|buenas tardes|buenas),?\s+(?:soy|es)\s+(` + nameSeq + `)`),
	regexp.MustCompile(`(?im)(?:saludos|atentamente|cordialmente|gracias),?\s+(` + nameSeq + `)$`),
}

// greetingPatterns are the subset the heuristic strategy checks
// per-message before falling back to bare capitalization runs.
var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:hola|buenos días|buenas tardes|buenas noches),?\s+(?:soy|es)\s+(` + nameSeq + `)`),
	regexp.MustCompile(`(?i)^(?:hola|hi|hey),?\s+(` + nameSeq + `)\s+(?:aquí|acá)`),
}

// capitalizedRun matches two or three consecutive capitalized words that
// look like a name mentioned in passing.
var capitalizedRun = regexp.MustCompile(`\b(` + namePart + `\s+` + namePart + `(?:\s+` + namePart + `)?)\b`)
