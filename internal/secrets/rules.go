package secrets

// Rule is a secret detection pattern.
type Rule struct {
	// ID identifies the rule in findings.
	ID string

	// Pattern is a regular expression matching the secret.
	Pattern string

	// Keywords, when set, must appear (case-insensitively) somewhere in the
	// text before the pattern is tried.
	Keywords []string
}

// DefaultRules covers credentials that tend to leak into task descriptions
// pasted from shell sessions: model provider keys, source-hosting tokens,
// cloud keys, and private key blocks.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "anthropic-api-key", Pattern: `sk-ant-[A-Za-z0-9_\-]{90,}`},
		{ID: "openai-api-key", Pattern: `sk-(?:proj-)?[A-Za-z0-9_\-]{40,}`},
		{ID: "google-api-key", Pattern: `AIza[A-Za-z0-9_\-]{35}`},
		{ID: "github-token", Pattern: `gh[pousr]_[A-Za-z0-9]{36}`},
		{ID: "github-fine-grained", Pattern: `github_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Pattern: `glpat-[A-Za-z0-9\-]{20,}`},
		{ID: "huggingface-token", Pattern: `hf_[A-Za-z0-9]{34,}`},
		{
			ID:       "aws-access-key-id",
			Pattern:  `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`,
			Keywords: []string{"aws", "akia", "asia"},
		},
		{
			ID:      "private-key",
			Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
		},
		{
			ID:       "generic-secret",
			Pattern:  `(?i)(?:api[_-]?key|secret|password|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords: []string{"key", "secret", "password", "token"},
		},
		{ID: "jwt", Pattern: `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`},
	}
}
