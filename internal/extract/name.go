package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	hasLetter      = regexp.MustCompile(`[a-záéíóúñA-ZÁÉÍÓÚÑ]`)
	hasDigit       = regexp.MustCompile(`\d`)
	usernameShape  = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// diacriticFolder strips combining marks so "José" and "Jose" compare
// equal during validation and dedup.
var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldDiacritics returns s with accents removed.
func FoldDiacritics(s string) string {
	out, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		return s
	}
	return out
}

// SplitFullName splits a full name into first and last parts using the
// LATAM two-apellido convention: three words keep both apellidos in the
// last name, four or more treat the first two words as a compound first
// name.
func SplitFullName(fullName string) (first, last string) {
	normalized := whitespaceRuns.ReplaceAllString(strings.TrimSpace(fullName), " ")
	if normalized == "" {
		return "", ""
	}

	parts := strings.Split(normalized, " ")
	switch len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	case 3:
		return parts[0], parts[1] + " " + parts[2]
	default:
		return parts[0] + " " + parts[1], strings.Join(parts[2:], " ")
	}
}

// IsValidName filters out placeholders, usernames, and garbage: too
// short, no letters, numbers present, or shouty all-caps.
func IsValidName(name string) bool {
	if len([]rune(name)) < 2 {
		return false
	}
	if !hasLetter.MatchString(name) {
		return false
	}
	if hasDigit.MatchString(name) {
		return false
	}
	if name == strings.ToUpper(name) && len([]rune(name)) > 3 {
		return false
	}
	return true
}

// CleanDisplayName strips emoji and collapses whitespace in a WhatsApp
// display name. The result may be empty when the name was decoration only.
func CleanDisplayName(displayName string) string {
	cleaned := emojiPattern.ReplaceAllString(displayName, "")
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(cleaned, " "))
}

// IsOnlyEmojis reports whether a display name is decoration with no text.
func IsOnlyEmojis(displayName string) bool {
	if strings.TrimSpace(displayName) == "" {
		return false
	}
	if !emojiPattern.MatchString(displayName) {
		return false
	}
	return CleanDisplayName(displayName) == ""
}

// IsLikelyUsername reports whether a display name has the shape of a
// social-media handle rather than a person's name.
func IsLikelyUsername(displayName string) bool {
	return usernameShape.MatchString(displayName)
}

// ExtractEmail finds the first email address in the given messages,
// lowercased, or "" when none is present.
func ExtractEmail(messages []string) string {
	joined := strings.Join(limitMessages(messages, 50), " ")
	if match := emailPattern.FindString(joined); match != "" {
		return strings.ToLower(match)
	}
	return ""
}

// CountryFromPhone infers a country name from an E.164 phone number.
// Longer dialing prefixes win over shorter ones (+593 before +5).
func CountryFromPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	for _, width := range []int{4, 3, 2} {
		if len(phone) >= width {
			if country, ok := phoneCodeCountry[phone[:width]]; ok {
				return country
			}
		}
	}
	return ""
}

func limitMessages(messages []string, n int) []string {
	if len(messages) > n {
		return messages[:n]
	}
	return messages
}
