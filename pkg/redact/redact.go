// Package redact strips likely secrets from vendor response bodies and
// error strings before they reach logs, using the same compiled-pattern
// shape as the teacher's masking package but with a fixed pattern list
// rather than a per-server config registry -- this pipeline has no
// equivalent of the teacher's per-MCP-server masking configuration to
// key off of.
package redact

import "regexp"

// pattern pairs a compiled regex with the replacement text it applies,
// mirroring the teacher's masking.CompiledPattern.
type pattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

var patterns = []pattern{
	{
		name:        "authorization_header",
		regex:       regexp.MustCompile(`(?i)(authorization:\s*bearer)\s+[A-Za-z0-9._-]+`),
		replacement: "$1 [REDACTED]",
	},
	{
		name:        "api_key_param",
		regex:       regexp.MustCompile(`(?i)([?&](?:api_?key|token|access_token)=)[^&\s"']+`),
		replacement: "$1[REDACTED]",
	},
	{
		name:        "url_userinfo",
		regex:       regexp.MustCompile(`(https?://)[^/\s:@]+:[^/\s:@]+@`),
		replacement: "$1[REDACTED]@",
	},
	{
		name:        "aws_access_key",
		regex:       regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		replacement: "[REDACTED]",
	},
}

// Body redacts secrets from s, returning the sanitized string. It is
// safe to call on arbitrary vendor HTML/JSON response bodies and on
// error messages alike.
func Body(s string) string {
	for _, p := range patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// Error wraps err's message through Body, for logging adapter failures
// that may have echoed a request URL carrying credentials.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Body(err.Error())
}
