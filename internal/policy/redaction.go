// Package policy masks personal data and credentials before text leaves the
// request path (journal entries, logs).
package policy

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: credentials first since their segments can look like
// anything else, cards before phones so a card number is not read as a phone.
var rules = []rule{
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*`), "[REDACTED_TOKEN]"},
	{regexp.MustCompile(`(?i)\b((?:access_)?token|participant_token)=[^&\s"]+`), "${1}=[REDACTED_TOKEN]"},
	{regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-]+`), "Bearer [REDACTED_TOKEN]"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks emails, phone and card numbers, and access tokens.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		next := r.pattern.ReplaceAllString(out, r.replacement)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
