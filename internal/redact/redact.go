// Package redact scrubs sensitive fragments from strings before they reach
// logs or error responses. Provisioning errors routinely embed connection
// URLs with credentials, SQL statements, and filesystem paths; this package
// replaces them with stable placeholders.
package redact

import "regexp"

// Redaction placeholders.
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedSQLPlaceholder        = "[REDACTED_SQL]"
	RedactedHostPlaceholder       = "[REDACTED_HOST]"
	RedactedEmailPlaceholder      = "[REDACTED_EMAIL]"
)

// rule pairs a pattern with its replacement. Rules run in order: connection
// strings are scrubbed whole before the narrower host and email patterns get
// a chance to match their remnants.
type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

var rules = []rule{
	// Connection strings with embedded credentials, scheme through the
	// userinfo separator.
	{
		regexp.MustCompile(`(?i)\b(postgres|postgresql|mysql|mongodb)://[^@\s]+@`),
		RedactedCredentialPlaceholder,
	},
	// password=... fragments from keyword/value DSNs and driver errors.
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"&\s]+`),
		RedactedCredentialPlaceholder,
	},
	// SQL statements echoed into driver errors. A statement verb alone is not
	// enough; an object keyword must follow so prose mentioning "create" or
	// "delete" survives.
	{
		regexp.MustCompile(
			`(?i)\b(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|TRUNCATE|GRANT)[\s\w,.*()='"$]+(?:FROM|INTO|SET|TABLE|DATABASE|WHERE|VALUES)[\s\w,.*()='"$]*`,
		),
		RedactedSQLPlaceholder,
	},
	// Filesystem paths, e.g. migration directories.
	{
		regexp.MustCompile(`(/[\w.-]+){2,}`),
		RedactedPathPlaceholder,
	},
	// Email addresses from seed rows.
	{
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		RedactedEmailPlaceholder,
	},
	// Qualified host:port endpoints.
	{
		regexp.MustCompile(
			`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`,
		),
		RedactedHostPlaceholder,
	},
}

// String redacts sensitive fragments from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Error redacts sensitive fragments from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
