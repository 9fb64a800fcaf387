package intent

import "strings"

// MaxInputLength caps every value forwarded to the backend or echoed to the user
const MaxInputLength = 1000

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// Sanitize strips angle brackets, trims, and truncates to MaxInputLength runes.
// Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(text string) string {
	cleaned := strings.TrimSpace(angleBrackets.Replace(text))
	runes := []rune(cleaned)
	if len(runes) <= MaxInputLength {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:MaxInputLength]))
}
