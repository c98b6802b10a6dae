package heuristic

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Risk is the severity a rule assigns to its matches.
type Risk string

const (
	RiskNone   Risk = "none"
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

var riskRank = map[Risk]int{RiskNone: 0, RiskLow: 1, RiskMedium: 2, RiskHigh: 3}

func (r Risk) valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Confidence maps a risk onto the detection confidence.
func (r Risk) Confidence() float64 {
	switch r {
	case RiskHigh:
		return 0.9
	case RiskMedium:
		return 0.7
	case RiskLow:
		return 0.5
	}
	return 0
}

// Indicator is one obfuscation signal.
type Indicator struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// ObfuscationRule emits a single detection when any indicator matches.
type ObfuscationRule struct {
	Name       string      `yaml:"name"`
	Type       string      `yaml:"type"`
	Risk       Risk        `yaml:"risk"`
	Indicators []Indicator `yaml:"indicators"`
}

// Rule is one dangerous-construct entry of the rule table.
type Rule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Risk        Risk   `yaml:"risk"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`

	re *regexp.Regexp
}

// RuleSet holds the compiled rule tables and the file extensions they apply to.
type RuleSet struct {
	CodeExtensions []string        `yaml:"code_extensions"`
	Obfuscation    ObfuscationRule `yaml:"obfuscation"`
	Rules          []Rule          `yaml:"rules"`
}

// DefaultRuleSet returns the built-in tables.
func DefaultRuleSet() *RuleSet {
	rs, err := ParseRuleSet(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("heuristic: built-in rules invalid: %v", err))
	}
	return rs
}

// LoadRuleFile reads and compiles a YAML rule document from disk.
func LoadRuleFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("heuristic: read rules: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet decodes and compiles a YAML rule document.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("heuristic: decode rules: %w", err)
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (rs *RuleSet) compile() error {
	var errs []error

	if rs.Obfuscation.Name == "" {
		rs.Obfuscation.Name = "Code Obfuscation"
	}
	if rs.Obfuscation.Type == "" {
		rs.Obfuscation.Type = "obfuscation"
	}
	if !rs.Obfuscation.Risk.valid() {
		rs.Obfuscation.Risk = RiskHigh
	}
	for i := range rs.Obfuscation.Indicators {
		ind := &rs.Obfuscation.Indicators[i]
		re, err := regexp.Compile(ind.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("obfuscation indicator %q: %w", ind.Name, err))
			continue
		}
		ind.re = re
	}

	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Name == "" || r.Pattern == "" {
			errs = append(errs, fmt.Errorf("rule %d: name and pattern are required", i))
			continue
		}
		if !r.Risk.valid() {
			errs = append(errs, fmt.Errorf("rule %q: invalid risk %q", r.Name, r.Risk))
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
			continue
		}
		r.re = re
	}

	rs.CodeExtensions = NormalizeExtensions(rs.CodeExtensions)

	if len(errs) > 0 {
		return fmt.Errorf("heuristic: %w", errors.Join(errs...))
	}
	return nil
}

// NormalizeExtensions lowercases entries and ensures a leading dot.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
