// Package heuristic flags dangerous constructs in script, markup and code files.
//
// Matching is plain regular expressions over the decoded text. It is a
// triage signal: false positives are expected.
package heuristic

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxBytes caps how much of a file is read for analysis. It matches
// the default upload limit so accepted uploads are analysed whole.
const DefaultMaxBytes = 100 * 1024 * 1024

// ErrTruncated marks a file that was only partly analysed.
var ErrTruncated = errors.New("heuristic: content exceeds analysis limit")

// Threat is one rule that matched the content.
type Threat struct {
	Name       string
	Type       string
	Risk       Risk
	Confidence float64
	Count      int
	Details    string
}

// Report is the outcome of scanning one file.
type Report struct {
	Threats    []Threat
	RiskLevel  Risk
	Obfuscated bool
	// Skipped is set when the content is not text and was not analysed.
	Skipped bool
	// Truncated is set when only the first BytesScanned bytes were analysed.
	Truncated    bool
	BytesScanned int64
}

// Scanner applies a RuleSet to text content.
type Scanner struct {
	rules      *RuleSet
	extensions map[string]bool
	maxBytes   int64
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions overrides the extensions from the rule set. Empty lists are ignored.
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		normalized := NormalizeExtensions(exts)
		if len(normalized) == 0 {
			return
		}
		s.extensions = make(map[string]bool, len(normalized))
		for _, ext := range normalized {
			s.extensions[ext] = true
		}
	}
}

// WithMaxBytes limits how much of each file is read.
func WithMaxBytes(n int64) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// NewScanner builds a scanner. A nil rule set uses the built-in tables.
func NewScanner(rules *RuleSet, opts ...Option) *Scanner {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	s := &Scanner{
		rules:      rules,
		extensions: make(map[string]bool, len(rules.CodeExtensions)),
		maxBytes:   DefaultMaxBytes,
	}
	for _, ext := range rules.CodeExtensions {
		s.extensions[ext] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Applies reports whether fileName has a configured code extension.
func (s *Scanner) Applies(fileName string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(fileName))]
}

// MaxBytes is the analysis limit per file.
func (s *Scanner) MaxBytes() int64 {
	return s.maxBytes
}

// ScanFile reads up to the configured limit of path and scans it.
// Content past the limit is not analysed and the report is marked Truncated.
// Binary content yields an empty, skipped report. Only read failures return an error.
func (s *Scanner) ScanFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{RiskLevel: RiskNone}, fmt.Errorf("heuristic: open %s: %w", path, err)
	}
	defer f.Close()

	// one extra byte tells a file of exactly maxBytes from a longer one
	data, err := io.ReadAll(io.LimitReader(f, s.maxBytes+1))
	if err != nil {
		return Report{RiskLevel: RiskNone}, fmt.Errorf("heuristic: read %s: %w", path, err)
	}
	truncated := int64(len(data)) > s.maxBytes
	if truncated {
		data = trimPartialRune(data[:s.maxBytes])
	}
	if !isText(data) {
		return Report{RiskLevel: RiskNone, Skipped: true}, nil
	}
	report := s.ScanText(string(data))
	report.Truncated = truncated
	report.BytesScanned = int64(len(data))
	return report, nil
}

// ScanText evaluates the obfuscation indicators, then every rule in table order.
func (s *Scanner) ScanText(content string) Report {
	report := Report{Threats: []Threat{}, RiskLevel: RiskNone}

	obf := s.rules.Obfuscation
	for _, ind := range obf.Indicators {
		if ind.re == nil || !ind.re.MatchString(content) {
			continue
		}
		// First matching indicator wins; the rest are not evaluated.
		report.Obfuscated = true
		report.Threats = append(report.Threats, Threat{
			Name:       obf.Name,
			Type:       obf.Type,
			Risk:       obf.Risk,
			Confidence: obf.Risk.Confidence(),
			Details:    "matched indicator: " + ind.Name,
		})
		break
	}

	for _, rule := range s.rules.Rules {
		if rule.re == nil {
			continue
		}
		matches := rule.re.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			continue
		}
		report.Threats = append(report.Threats, Threat{
			Name:       rule.Name,
			Type:       rule.Type,
			Risk:       rule.Risk,
			Confidence: rule.Risk.Confidence(),
			Count:      len(matches),
			Details:    matchDetails(rule.Description, len(matches)),
		})
	}

	report.RiskLevel = aggregateRisk(report)
	return report
}

// aggregateRisk is the ceiling over threat risks; obfuscation forces high.
func aggregateRisk(r Report) Risk {
	if r.Obfuscated {
		return RiskHigh
	}
	level := RiskNone
	for _, t := range r.Threats {
		if riskRank[t.Risk] > riskRank[level] {
			level = t.Risk
		}
	}
	return level
}

func matchDetails(description string, count int) string {
	suffix := "match"
	if count != 1 {
		suffix = "matches"
	}
	if description == "" {
		return fmt.Sprintf("%d %s", count, suffix)
	}
	return fmt.Sprintf("%s (%d %s)", description, count, suffix)
}

func isText(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

// trimPartialRune drops a multi-byte sequence cut off by the read limit.
func trimPartialRune(data []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(data) > 0 && !utf8.Valid(data); i++ {
		data = data[:len(data)-1]
	}
	return data
}
