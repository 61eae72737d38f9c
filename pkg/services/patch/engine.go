package patch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

const contextLines = 3

// Generate builds a unified diff replacing whole lines according to the
// given hunks. Replacements land on a copy in descending line order so one
// edit cannot shift another's index; out-of-range lines are ignored. When
// nothing applies the patch is empty.
func Generate(path string, original string, changes []domain.ChangeHunk) string {
	origLines := splitKeepEnds(original)

	newLines := make([]string, len(origLines))
	copy(newLines, origLines)

	sorted := make([]domain.ChangeHunk, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Line > sorted[j].Line })

	for _, ch := range sorted {
		idx := ch.Line - 1
		if idx < 0 || idx >= len(newLines) {
			continue
		}
		newLines[idx] = ch.Content + "\n"
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        origLines,
		B:        newLines,
		FromFile: path,
		ToFile:   path,
		Context:  contextLines,
	})
	if err != nil {
		return ""
	}
	return text
}

// Apply patches content with a deliberately lenient cursor walk instead of
// strict patch semantics: a context mismatch consumes the patch line
// without moving the cursor, deletions are not content-verified, and a
// malformed hunk header resets the cursor to zero. It never fails; the
// boolean reports whether any addition or deletion took effect.
//
// For patches produced by Generate against the same original, Apply
// reproduces the edited content exactly.
func Apply(original string, patchText string) (string, bool) {
	out := splitKeepEnds(original)
	applied := false
	cursor := 0

	for _, pl := range strings.Split(patchText, "\n") {
		pl = strings.TrimSuffix(pl, "\r")

		switch {
		case strings.HasPrefix(pl, "@@"):
			cursor = hunkStart(pl)
		case strings.HasPrefix(pl, "--- "), strings.HasPrefix(pl, "+++ "):
			// File headers are informational only.
		case strings.HasPrefix(pl, " "):
			if cursor < len(out) && out[cursor] == pl[1:]+"\n" {
				cursor++
			}
		case strings.HasPrefix(pl, "+"):
			if cursor > len(out) {
				cursor = len(out)
			}
			out = append(out[:cursor], append([]string{pl[1:] + "\n"}, out[cursor:]...)...)
			cursor++
			applied = true
		case strings.HasPrefix(pl, "-"):
			if cursor < len(out) {
				out = append(out[:cursor], out[cursor+1:]...)
				applied = true
			}
		}
	}

	return strings.Join(out, ""), applied
}

// hunkStart extracts the 0-based cursor position from a header such as
// "@@ -12,4 +12,4 @@". Anything unparsable resets to the top of the file.
func hunkStart(header string) int {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return 0
	}

	tok := strings.SplitN(fields[1], ",", 2)[0]
	if len(tok) < 2 {
		return 0
	}

	n, err := strconv.Atoi(tok[1:])
	if err != nil || n < 1 {
		return 0
	}
	return n - 1
}

// splitKeepEnds splits content into lines that keep their trailing newline,
// the way diff tooling treats line sequences.
func splitKeepEnds(content string) []string {
	if content == "" {
		return []string{}
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
