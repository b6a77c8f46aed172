// Package privacy scrubs personally identifiable information from free-text
// symptom descriptions before they reach retrieval, prompting, or logs.
package privacy

import "regexp"

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	// Phone numbers with optional country code, separators, and extensions.
	phoneRe = regexp.MustCompile(`(\+?\d{1,3}[\s.\-]?)?(\(\d{3}\)|\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	ssnRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	// Medical record numbers as written on intake forms: "MRN 12345678",
	// "MRN: 12345678", "MRN#12345678".
	mrnRe = regexp.MustCompile(`(?i)\bMRN[\s:#]*\d{5,10}\b`)
	// Honorific followed by a capitalized name, e.g. "Mr. Smith",
	// "Dr Jane Doe". Bare capitalized words are left alone; stripping every
	// proper noun would mangle condition names like Parkinson.
	nameRe = regexp.MustCompile(`\b(Mr|Mrs|Ms|Miss|Dr|Prof)\.?\s+[A-Z][a-z]+(\s+[A-Z][a-z]+)?`)
)

// Scrub replaces recognized PII spans with placeholder tokens. The clinical
// content of the text is preserved; only identity-bearing spans change.
func Scrub(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = ssnRe.ReplaceAllString(text, "[ID]")
	text = mrnRe.ReplaceAllString(text, "[ID]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	text = nameRe.ReplaceAllString(text, "[NAME]")
	return text
}

// ContainsPII reports whether Scrub would change the text. Useful for
// logging a redaction count without retaining the original.
func ContainsPII(text string) bool {
	return Scrub(text) != text
}
