package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/signald/internal/config"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Redactor removes secrets from text.
type Redactor interface {
	Redact(content string) Result
}

// Result is the outcome of one redaction.
type Result struct {
	Content string
	ByRule  map[string]int
}

// Total returns the number of secrets replaced.
func (r Result) Total() int {
	n := 0
	for _, c := range r.ByRule {
		n += c
	}
	return n
}

// Detector is a Redactor backed by a Gitleaks detector. The detector is
// built once and calls are serialized.
type Detector struct {
	mu       sync.Mutex
	detector *detect.Detector
	logger   *zap.Logger
}

// NewDetector builds a Detector with the Gitleaks default rules plus
// allowlist, which may be nil.
func NewDetector(allowlist *Allowlist, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	if allowlist != nil {
		if err := applyAllowlist(&d.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &Detector{detector: d, logger: logger}, nil
}

// New returns the Redactor described by cfg: a Detector when enabled, a
// Noop otherwise.
func New(cfg config.SecretsConfig, logger *zap.Logger) (Redactor, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	allowlist, err := LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}
	return NewDetector(allowlist, logger)
}

func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	global := &gitleaksConfig.Allowlist{Description: "signald allowlist"}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.StopWords...)
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}

// Redact replaces every detected secret with [REDACTED:<rule-id>].
func (d *Detector) Redact(content string) Result {
	result := Result{Content: content, ByRule: map[string]int{}}
	if strings.TrimSpace(content) == "" {
		return result
	}

	d.mu.Lock()
	findings := d.detector.DetectString(content)
	d.mu.Unlock()

	if len(findings) == 0 {
		return result
	}

	// Replace by value, longest first, so a secret that contains another
	// is not split by the shorter replacement.
	type hit struct{ secret, rule string }
	hits := make([]hit, 0, len(findings))
	seen := make(map[string]bool, len(findings))
	for _, f := range findings {
		if f.Secret == "" || seen[f.Secret] {
			continue
		}
		seen[f.Secret] = true
		hits = append(hits, hit{secret: f.Secret, rule: f.RuleID})
	}
	sort.Slice(hits, func(i, j int) bool { return len(hits[i].secret) > len(hits[j].secret) })

	redacted := content
	for _, h := range hits {
		n := strings.Count(redacted, h.secret)
		if n == 0 {
			continue
		}
		redacted = strings.ReplaceAll(redacted, h.secret, "[REDACTED:"+h.rule+"]")
		result.ByRule[h.rule] += n
	}
	result.Content = redacted

	d.logger.Debug("redacted secrets from text", zap.Int("count", result.Total()))
	return result
}

// Noop returns content unchanged.
type Noop struct{}

func (Noop) Redact(content string) Result {
	return Result{Content: content, ByRule: map[string]int{}}
}

var (
	_ Redactor = (*Detector)(nil)
	_ Redactor = Noop{}
)
