package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// ErrInvalidAllowlist is returned for unreadable allowlist files.
var ErrInvalidAllowlist = errors.New("invalid secrets allowlist")

// Finding is one detected secret. Match is never logged.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"` // page slug or section id
	Line        int    `json:"line"`
	StartCol    int    `json:"start_col"`
	EndCol      int    `json:"end_col"`
	Match       string `json:"-"`
}

func (f Finding) String() string {
	if f.Location == "" {
		return fmt.Sprintf("%s at line %d", f.RuleID, f.Line)
	}
	return fmt.Sprintf("%s in %s at line %d", f.RuleID, f.Location, f.Line)
}

// Allowlist holds content patterns that are never reported.
type Allowlist struct {
	Regexes   []string `toml:"regexes"`
	StopWords []string `toml:"stopwords"`
}

// LoadAllowlist reads an [allowlist] table from path. A missing file yields
// an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	var file struct {
		Allowlist Allowlist `toml:"allowlist"`
	}
	if path == "" {
		return &Allowlist{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Allowlist{}, nil
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}
	for _, p := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidAllowlist, p, err)
		}
	}
	return &file.Allowlist, nil
}

// Scanner detects secrets in text.
type Scanner struct {
	allow  *Allowlist
	detect func(content string) ([]Finding, error)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithAllowlist suppresses matches covered by a.
func WithAllowlist(a *Allowlist) Option { return func(s *Scanner) { s.allow = a } }

// WithDetector replaces the gitleaks detector.
func WithDetector(fn func(content string) ([]Finding, error)) Option {
	return func(s *Scanner) { s.detect = fn }
}

// NewScanner returns a scanner backed by the default gitleaks rules.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{}
	s.detect = s.gitleaks
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns every finding in content.
func (s *Scanner) Scan(content string) ([]Finding, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return s.detect(content)
}

// ScanAll scans each named text and tags findings with their name.
func (s *Scanner) ScanAll(texts map[string]string, order []string) ([]Finding, error) {
	var out []Finding
	for _, name := range order {
		found, err := s.Scan(texts[name])
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		for _, f := range found {
			f.Location = name
			out = append(out, f)
		}
	}
	return out, nil
}

// Redact replaces every finding in content with [REDACTED:rule].
func (s *Scanner) Redact(content string) (string, error) {
	found, err := s.Scan(content)
	if err != nil {
		return "", err
	}
	for _, f := range found {
		if f.Match != "" {
			content = strings.ReplaceAll(content, f.Match, "[REDACTED:"+f.RuleID+"]")
		}
	}
	return content, nil
}

// gitleaks builds a fresh detector per call. Detectors accumulate findings
// internally and are not reused.
func (s *Scanner) gitleaks(content string) ([]Finding, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("gitleaks detector: %w", err)
	}
	if s.allow != nil {
		applyAllowlist(&detector.Config, s.allow)
	}
	raw := detector.DetectString(content)
	out := make([]Finding, 0, len(raw))
	for _, f := range raw {
		out = append(out, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			StartCol:    f.StartColumn,
			EndCol:      f.EndColumn,
			Match:       f.Secret,
		})
	}
	return out, nil
}

func applyAllowlist(cfg *gitleaksConfig.Config, a *Allowlist) {
	global := &gitleaksConfig.Allowlist{Description: "sitegen content allowlist"}
	for _, p := range a.Regexes {
		// Patterns were compiled once in LoadAllowlist.
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(regexp.MustCompile(p)))
	}
	global.StopWords = append(global.StopWords, a.StopWords...)
	cfg.Allowlists = append(cfg.Allowlists, global)
}
