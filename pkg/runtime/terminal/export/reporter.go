package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/fatih/color"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

type TableConfig struct {
	LocationWidth int
	SeverityWidth int
	CheckWidth    int
	MessageWidth  int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		LocationWidth: 20,
		SeverityWidth: 8,
		CheckWidth:    28,
		MessageWidth:  54,
	}
}

type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

// Issues renders the findings for one file: a per-severity summary, the
// issue table and any fix suggestions the provider produced.
func (r *Reporter) Issues(path string, issues []domain.LocatedIssue) error {
	funcMap := template.FuncMap{
		"formatRow": func(location, severity, check, message string) string {
			return fmt.Sprintf("| %-*s | %-*s | %-*s | %-*s |",
				r.config.LocationWidth, location,
				r.config.SeverityWidth, severity,
				r.config.CheckWidth, check,
				r.config.MessageWidth, message)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+",
				strings.Repeat("-", r.config.LocationWidth+2),
				strings.Repeat("-", r.config.SeverityWidth+2),
				strings.Repeat("-", r.config.CheckWidth+2),
				strings.Repeat("-", r.config.MessageWidth+2))
		},
		"location": func(issue domain.LocatedIssue) string {
			return fmt.Sprintf("%s:%d", issue.File, issue.Line)
		},
	}

	tmpl := `
Security review: {{.Path}}
Issues found: {{len .Issues}}
{{range $severity, $count := .Summary}}{{$severity}}: {{$count}}
{{end}}{{if .Issues}}
{{separator}}
{{formatRow "Location" "Severity" "Check" "Message"}}
{{separator}}
{{range .Issues}}{{formatRow (location .) (printf "%s" .Severity) .Check .Message}}
{{end}}{{separator}}
{{end}}{{range .Issues}}{{if .FixSuggestion}}
Suggested fix for {{location .}}:
{{.FixSuggestion}}
{{end}}{{end}}`

	t, err := template.New("issues").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	sorted := make([]domain.LocatedIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}
		return sorted[i].Line < sorted[j].Line
	})

	summary := map[string]int{}
	for _, issue := range sorted {
		summary[string(issue.Severity)]++
	}

	return t.Execute(r.writer, struct {
		Path    string
		Issues  []domain.LocatedIssue
		Summary map[string]int
	}{
		Path:    path,
		Issues:  sorted,
		Summary: summary,
	})
}

// Diff writes a unified diff with terminal coloring: additions green,
// deletions red, hunk markers cyan.
func (r *Reporter) Diff(patchText string) error {
	additions := color.New(color.FgGreen)
	deletions := color.New(color.FgRed)
	hunks := color.New(color.FgCyan)
	headers := color.New(color.Bold)

	for _, line := range strings.Split(strings.TrimSuffix(patchText, "\n"), "\n") {
		var err error
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			_, err = headers.Fprintln(r.writer, line)
		case strings.HasPrefix(line, "@@"):
			_, err = hunks.Fprintln(r.writer, line)
		case strings.HasPrefix(line, "+"):
			_, err = additions.Fprintln(r.writer, line)
		case strings.HasPrefix(line, "-"):
			_, err = deletions.Fprintln(r.writer, line)
		default:
			_, err = fmt.Fprintln(r.writer, line)
		}
		if err != nil {
			return err
		}
	}

	return nil
}
