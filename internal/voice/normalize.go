package voice

import (
	"regexp"
	"strings"
)

var markupTagPattern = regexp.MustCompile(`<[^>]*>`)

// NormalizeText prepares request text for synthesis and cache keying. SSML documents (text
// containing <speak>) lose all tags; every whitespace run becomes a single space.
// NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	if strings.Contains(text, "<speak>") {
		text = markupTagPattern.ReplaceAllString(text, "")
	}
	return strings.Join(strings.Fields(text), " ")
}
