// Package safety screens script content for disallowed patterns before any
// write is allowed to proceed.
package safety

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is a single disallowed-pattern rule.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`

	re *regexp.Regexp
}

// Violation describes a matched rule.
type Violation struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Screen evaluates content against a compiled rule set.
type Screen struct {
	rules []Rule
}

// ruleFile is the on-disk shape of a rules override file.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Default rules cover destructive and injection-prone PowerShell constructs.
// The list is intentionally conservative; operators can replace it wholesale
// with a rules file.
const defaultRulesYAML = `
rules:
  - name: download-and-invoke
    pattern: '(?i)(Invoke-Expression|iex)\s*\(?\s*[^)]*\b(DownloadString|DownloadFile|Invoke-WebRequest|iwr|curl|wget)\b'
    reason: remote code download piped into execution
  - name: encoded-command
    pattern: '(?i)-enc(odedcommand)?\s+[A-Za-z0-9+/=]{16,}'
    reason: base64-encoded command payload
  - name: recursive-force-delete-root
    pattern: '(?i)Remove-Item\s+(-\w+\s+)*["'']?([A-Za-z]:\\|/)\s*["'']?\s+(-Recurse|-Force)'
    reason: recursive forced delete of a filesystem root
  - name: disable-defender
    pattern: '(?i)Set-MpPreference\s+.*-Disable(RealtimeMonitoring|IOAVProtection)'
    reason: disables endpoint protection
  - name: credential-dump
    pattern: '(?i)(mimikatz|Invoke-Mimikatz|sekurlsa::)'
    reason: credential dumping tooling
  - name: add-persistence-run-key
    pattern: '(?i)New-ItemProperty\s+.*\\CurrentVersion\\Run'
    reason: registry run-key persistence
`

// NewScreen compiles the default rule set.
func NewScreen() (*Screen, error) {
	return newFromYAML([]byte(defaultRulesYAML))
}

// NewScreenFromFile compiles a rule set from a YAML file, replacing the defaults.
func NewScreenFromFile(path string) (*Screen, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read safety rules: %w", err)
	}
	return newFromYAML(data)
}

func newFromYAML(data []byte) (*Screen, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse safety rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("safety rules: no rules defined")
	}

	for i := range file.Rules {
		re, err := regexp.Compile(file.Rules[i].Pattern)
		if err != nil {
			return nil, fmt.Errorf("safety rule %q: %w", file.Rules[i].Name, err)
		}
		file.Rules[i].re = re
	}

	return &Screen{rules: file.Rules}, nil
}

// Check returns every rule violated by content. An empty result means the
// content passed the screen.
func (s *Screen) Check(content string) []Violation {
	var violations []Violation
	for _, rule := range s.rules {
		if rule.re.MatchString(content) {
			violations = append(violations, Violation{Rule: rule.Name, Reason: rule.Reason})
		}
	}
	return violations
}

// RuleCount returns the number of compiled rules.
func (s *Screen) RuleCount() int {
	return len(s.rules)
}
