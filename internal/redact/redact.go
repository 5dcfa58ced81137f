// Package redact scrubs secrets from any text shown to the operator.
package redact

import "regexp"

const placeholder = "[REDACTED]"

// Redactor applies an ordered set of patterns; each match becomes
// [REDACTED]. Construct once and share; compilation is not free.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles the built-in pattern set: bearer tokens, service PATs,
// API keys, AWS key ids, JWTs, PEM private key blocks, and env-style
// secret assignments.
func New() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
			regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`),
			regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9._-]+\.[A-Za-z0-9._-]+`),
			regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+PRIVATE KEY-----.*?-----END [A-Z ]+PRIVATE KEY-----`),
			// Not anchored to line start so assignments embedded in
			// JSON payload strings are still caught.
			regexp.MustCompile(`(?im)[A-Z0-9_]*(TOKEN|SECRET|PASSWORD|API_KEY)[A-Z0-9_]*\s*=\s*.+$`),
		},
	}
}

// Redact replaces every match of every pattern, in order.
func (r *Redactor) Redact(input string) string {
	out := input
	for _, pattern := range r.patterns {
		out = pattern.ReplaceAllString(out, placeholder)
	}
	return out
}
