package diagnostics

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

// marker delimits diagnostic blocks in raw tool output.
const marker = "Error:"

var locationRe = regexp.MustCompile(`on (.+) line (\d+)`)

// Parse extracts structured diagnostics from raw analyzer output.
// Typical input:
//
//	Error: Invalid value for argument
//	  on main.tf line 7, in resource "aws_s3_bucket" "example":
//
// Parse never fails: malformed input degrades to a partial or empty list,
// and an empty input means "no findings".
func Parse(raw string) []domain.Diagnostic {
	diags := make([]domain.Diagnostic, 0)

	blocks := strings.Split(strings.TrimSpace(raw), marker)
	for i, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}

		lines := strings.Split(trimmed, "\n")
		message := strings.TrimSpace(lines[0])

		file := "unknown"
		line := 0
		for _, l := range lines {
			m := locationRe.FindStringSubmatch(l)
			if m == nil {
				continue
			}
			file = strings.TrimSpace(m[1])
			if n, err := strconv.Atoi(m[2]); err == nil {
				line = n
			}
		}

		// Blocks after the first were introduced by the marker; keep it in
		// Raw so severity detection still sees it.
		rawBlock := block
		if i > 0 {
			rawBlock = marker + block
		}

		diags = append(diags, domain.Diagnostic{
			Message: message,
			File:    file,
			Line:    line,
			Column:  0,
			Code:    domain.DiagnosticCode,
			Raw:     rawBlock,
		})
	}

	return diags
}
