// Package secrets redacts credentials from text before it is persisted to
// the learning log.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Finding locates one detected secret. The matched text itself is never kept.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Result is the outcome of scrubbing one string.
type Result struct {
	Text     string
	Findings []Finding
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rule IDs that matched, sorted.
func (r Result) RuleIDs() []string {
	seen := make(map[string]bool, len(r.Findings))
	var ids []string
	for _, f := range r.Findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			ids = append(ids, f.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

// Scrubber applies a fixed rule set.
type Scrubber struct {
	rules     []compiledRule
	redaction string
	leaks     *leakDetector
}

// Option configures a Scrubber.
type Option func(*options)

type options struct {
	rules     []Rule
	redaction string
	gitleaks  bool
}

// WithRules replaces the default rule set.
func WithRules(rules []Rule) Option {
	return func(o *options) { o.rules = rules }
}

// WithRedaction sets the replacement text.
func WithRedaction(s string) Option {
	return func(o *options) { o.redaction = s }
}

// New compiles the rule set.
func New(opts ...Option) (*Scrubber, error) {
	o := options{rules: DefaultRules(), redaction: DefaultRedaction}
	for _, opt := range opts {
		opt(&o)
	}
	if o.redaction == "" {
		o.redaction = DefaultRedaction
	}

	s := &Scrubber{redaction: o.redaction, rules: make([]compiledRule, 0, len(o.rules))}
	for i, rule := range o.rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: ID is required", i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		kws := make([]string, len(rule.Keywords))
		for j, kw := range rule.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		s.rules = append(s.rules, compiledRule{id: rule.ID, pattern: re, keywords: kws})
	}
	if o.gitleaks {
		leaks, err := newLeakDetector()
		if err != nil {
			return nil, err
		}
		s.leaks = leaks
	}
	return s, nil
}

type span struct {
	start, end int
}

// Scrub redacts every match. Overlapping matches collapse into one redaction.
func (s *Scrubber) Scrub(content string) Result {
	res := Result{Text: content}
	if content == "" {
		return res
	}

	lower := strings.ToLower(content)
	var spans []span
	for _, rule := range s.rules {
		if !hasKeyword(lower, rule.keywords) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			res.Findings = append(res.Findings, Finding{RuleID: rule.id, Start: m[0], End: m[1]})
			spans = append(spans, span{start: m[0], end: m[1]})
		}
	}
	if s.leaks != nil {
		for _, f := range s.leaks.findings(content) {
			res.Findings = append(res.Findings, f)
			spans = append(spans, span{start: f.Start, end: f.End})
		}
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(content[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(content[last:])
	res.Text = b.String()
	return res
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping or adjacent ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
