package api

import "regexp"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: card numbers must be caught before the generic long-number
// rule, and bearer tokens before bare hex tokens.
var clickTextRedactions = []redaction{
	{regexp.MustCompile(`(?i)\b[\w.+-]+@[\w.-]+\.[a-z]{2,}\b`), "<email>"},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-8][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "<uuid>"},
	{regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._~+/=-]{8,}`), "<token>"},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{24,}\b`), "<token>"},
	{regexp.MustCompile(`\b(?:\d[ -]?){12,15}\d\b`), "<card-number>"},
	{regexp.MustCompile(`\b\d{12,19}\b`), "<long-number>"},
}

// redactClickText masks personal data a click snippet may carry, such as an
// email shown on an account button.
func redactClickText(text string) string {
	for _, rule := range clickTextRedactions {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text
}
