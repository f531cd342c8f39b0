package vrchat

import "regexp"

const redacted = "###REDACTED###"

// redactPatterns covers credentials, cookies and tokens in logged request and
// response summaries. Patterns with two capture groups keep the field name
// and quotes; single-group patterns keep only the prefix.
var redactPatterns = []*regexp.Regexp{
	// Passwords in JSON bodies and query strings
	regexp.MustCompile(`(?i)("password"\s*:\s*")[^"]*(")`),
	regexp.MustCompile(`(?i)(password=)[^&\s]*`),

	// Auth cookies and tokens
	regexp.MustCompile(`(?i)("auth(?:Token|Cookie)?"\s*:\s*")[^"]*(")`),
	regexp.MustCompile(`(?i)(auth(?:Token|Cookie)?=)[^&;\s]*`),

	// Second-factor cookies
	regexp.MustCompile(`(?i)("twoFactorAuth(?:Token|Cookie)?"\s*:\s*")[^"]*(")`),
	regexp.MustCompile(`(?i)(twoFactorAuth(?:Token|Cookie)?=)[^&;\s]*`),

	// Generic token/secret fields
	regexp.MustCompile(`(?i)("(?:token|secret|api[_-]?key)"\s*:\s*")[^"]*(")`),

	// Authorization header material
	regexp.MustCompile(`(?i)(Basic\s+)[A-Za-z0-9+/=]+`),
	regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9_.-]+`),

	// The Cookie header carries the whole session
	regexp.MustCompile(`(?i)(Cookie:\s*)[^\n]*`),

	// Account identifiers in bodies
	regexp.MustCompile(`(?i)("username"\s*:\s*")[^"]*(")`),
	regexp.MustCompile(`(?i)("email"\s*:\s*")[^"]*(")`),
}

// Sanitize removes sensitive material from a request or response summary
// before it reaches any log or dashboard observer.
func Sanitize(content string) string {
	result := content
	for _, pattern := range redactPatterns {
		switch pattern.NumSubexp() {
		case 2:
			result = pattern.ReplaceAllString(result, "${1}"+redacted+"${2}")
		default:
			result = pattern.ReplaceAllString(result, "${1}"+redacted)
		}
	}
	return result
}
