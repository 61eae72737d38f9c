package analyzer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

const (
	CheckHardcodedCredentials = "SEC_HARDCODED_CREDENTIALS"
	CheckOpenIngress          = "SEC_OPEN_INGRESS"
)

type secRule struct {
	re       *regexp.Regexp
	check    string
	severity domain.Severity
	message  string
}

var secRules = []secRule{
	{regexp.MustCompile(`aws_access_key\s*=\s*["'][^"']+["']`), CheckHardcodedCredentials, domain.SeverityError, "Hardcoded credentials detected"},
	{regexp.MustCompile(`aws_secret_key\s*=\s*["'][^"']+["']`), CheckHardcodedCredentials, domain.SeverityError, "Hardcoded credentials detected"},
	{regexp.MustCompile(`password\s*=\s*["'][^"']+["']`), CheckHardcodedCredentials, domain.SeverityError, "Hardcoded credentials detected"},
	{regexp.MustCompile(`token\s*=\s*["'][^"']+["']`), CheckHardcodedCredentials, domain.SeverityError, "Hardcoded credentials detected"},
	{regexp.MustCompile(`cidr_blocks\s*=\s*\[["']0\.0\.0\.0/0["']\]`), CheckOpenIngress, domain.SeverityWarning, "Overly permissive security configuration"},
	{regexp.MustCompile(`from_port\s*=\s*0\b`), CheckOpenIngress, domain.SeverityWarning, "Overly permissive security configuration"},
	{regexp.MustCompile(`to_port\s*=\s*65535\b`), CheckOpenIngress, domain.SeverityWarning, "Overly permissive security configuration"},
}

// SecScan is a built-in scanner for hardcoded credentials and wide-open
// network rules. It needs no external tool and emits structured findings.
type SecScan struct{}

func NewSecScan() *SecScan { return &SecScan{} }

func (s *SecScan) Name() string { return "secscan" }

func (s *SecScan) Analyze(_ context.Context, in Input) (Report, error) {
	var findings []domain.LocatedIssue

	paths := make([]string, 0, len(in.Files))
	for path := range in.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		lines := strings.Split(in.Files[path], "\n")
		for i, line := range lines {
			for _, rule := range secRules {
				if !rule.re.MatchString(line) {
					continue
				}
				findings = append(findings, domain.LocatedIssue{
					Type:     domain.IssueLogic,
					Severity: rule.severity,
					Message:  rule.message,
					File:     path,
					Line:     i + 1,
					Check:    rule.check,
				})
				break
			}
		}
	}

	return Report{Findings: findings}, nil
}
