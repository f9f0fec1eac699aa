// Package differ computes line-based unified diffs between two filtered
// snapshots and decides whether a page changed.
package differ

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hamed0406/pagewatch/internal/domain"
)

// NoChanges is persisted in place of an empty diff so readers can tell
// "nothing changed" apart from "not computed yet".
const NoChanges = "No changes detected."

const contextLines = 3

// Diff compares baseline with candidate. It never fails: a diff error is
// written into the artifact text and reported through Err.
func Diff(iteration int, baseline, candidate string) domain.DiffArtifact {
	art := domain.DiffArtifact{Iteration: iteration}

	a := splitLines(baseline)
	b := splitLines(candidate)

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "original",
		ToFile:   "modified",
		Context:  contextLines,
	})
	if err != nil {
		art.Err = fmt.Errorf("unified diff: %w", err)
		art.Text = "Error generating diff: " + err.Error()
		return art
	}
	if text == "" {
		art.Text = NoChanges
		return art
	}

	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'r':
			art.Removed += op.I2 - op.I1
			art.Added += op.J2 - op.J1
		case 'd':
			art.Removed += op.I2 - op.I1
		case 'i':
			art.Added += op.J2 - op.J1
		}
	}
	art.HasChanges = true
	art.Text = strings.TrimSuffix(text, "\n")
	return art
}

// splitLines breaks s on \n, \r\n or \r. A trailing terminator does not
// start an extra line, so "x" and "x\n" compare equal. Each line gets a
// "\n" back for the unified diff writer.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] += "\n"
	}
	return lines
}

// Summarize prefixes a diff with added/removed line counts in the layout
// the dashboard shows next to a change notification.
func Summarize(diffText string) string {
	if diffText == NoChanges || strings.HasPrefix(diffText, "Error generating diff:") {
		return diffText
	}
	var added, removed int
	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "), strings.HasPrefix(line, "--- "):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return fmt.Sprintf("Summary of Changes:\n- %d lines added\n- %d lines removed\n\nDetailed Changes:\n----------------\n%s",
		added, removed, diffText)
}
