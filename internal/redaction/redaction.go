// Package redaction strips credential-looking substrings from text before
// it is persisted, per spec §8 (conversation entries) and §3 (the
// redaction is applied before storage, not at read time).
package redaction

import "regexp"

// patterns is a fixed set of literal credential shapes. Each is replaced
// wholesale with [REDACTED]; we never attempt partial masking since the
// point is to keep secrets out of the conversations table entirely.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`),                    // OpenAI/Anthropic-style API keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{10,}`),      // bearer tokens
	regexp.MustCompile(`ghp_[A-Za-z0-9]{30,}`),                   // GitHub personal access tokens
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),                       // AWS access key IDs
	regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`),              // inline password assignments
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),     // PEM private key headers
	regexp.MustCompile(`eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`), // JWTs
}

// Redact replaces every credential-looking substring in text with
// [REDACTED] and returns the sanitized string.
func Redact(text string) string {
	out := text
	for _, p := range patterns {
		out = p.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}
