package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksPrefix marks findings reported by the gitleaks rule set.
const gitleaksPrefix = "gitleaks:"

// WithGitleaks adds the gitleaks default rule set to the built-in rules.
// Compiling it takes noticeably longer than the built-in set.
func WithGitleaks() Option {
	return func(o *options) { o.gitleaks = true }
}

// leakDetector serialises access to a gitleaks detector, which accumulates
// findings internally.
type leakDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

func newLeakDetector() (*leakDetector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load gitleaks rules: %w", err)
	}
	return &leakDetector{detector: d}, nil
}

// findings returns every occurrence in content of a secret gitleaks flags.
func (l *leakDetector) findings(content string) []Finding {
	l.mu.Lock()
	leaks := l.detector.DetectString(content)
	l.mu.Unlock()

	var out []Finding
	seen := make(map[string]bool, len(leaks))
	for _, leak := range leaks {
		secret := leak.Secret
		if secret == "" {
			secret = leak.Match
		}
		if secret == "" || seen[secret] {
			continue
		}
		seen[secret] = true
		for from := 0; ; {
			i := strings.Index(content[from:], secret)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, Finding{RuleID: gitleaksPrefix + leak.RuleID, Start: start, End: start + len(secret)})
			from = start + len(secret)
		}
	}
	return out
}
