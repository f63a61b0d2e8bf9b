package history

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nakatsu/shirabe/internal/models"
)

// contextEntries is how many history entries feed into prompt context.
const contextEntries = 10

// issueMarkers flag result lines worth keeping as detected issues.
var issueMarkers = []string{"⚠", "warning", "inconsistent", "contradiction", "mismatch"}

// docTypeKeywords maps result-content keywords to a document type label.
// Order matters: the first hit wins.
var docTypeKeywords = []struct {
	keyword string
	label   string
}{
	{"contract", "contract"},
	{"estimate", "estimate"},
	{"invoice", "invoice"},
	{"traffic control", "traffic control record"},
	{"survey", "survey drawing"},
}

// NewEntry builds a history entry from an analysis result: the document type
// is classified from the result text, issue lines are collected, and the
// summary is the head of the result.
func NewEntry(fileName, filePath, result string) *models.HistoryEntry {
	return &models.HistoryEntry{
		FileName:     fileName,
		FilePath:     filePath,
		Folder:       filepath.Dir(filePath),
		AnalyzedAt:   time.Now().Format("2006-01-02 15:04:05"),
		DocumentType: classifyResult(result),
		Summary:      summarize(result, 10),
		Issues:       extractIssues(result),
	}
}

func classifyResult(result string) string {
	lower := strings.ToLower(result)
	for _, dt := range docTypeKeywords {
		if strings.Contains(lower, dt.keyword) {
			return dt.label
		}
	}
	return ""
}

// Issues collects the result lines that flag a detected problem.
func Issues(result string) []string {
	return extractIssues(result)
}

func extractIssues(result string) []string {
	var issues []string
	for _, line := range strings.Split(result, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range issueMarkers {
			if strings.Contains(lower, marker) {
				issues = append(issues, strings.TrimSpace(line))
				break
			}
		}
	}
	return issues
}

func summarize(result string, lines int) string {
	all := strings.Split(result, "\n")
	if len(all) > lines {
		all = all[:lines]
	}
	return strings.Join(all, "\n")
}

// BuildContext renders the newest history entries as a prompt section so a
// run can cross-check against what was analyzed before. Returns "" when
// entries is empty.
func BuildContext(entries []*models.HistoryEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## Prior analysis history (reference)\n")
	b.WriteString("Documents analyzed earlier in the same project. Check consistency against them.\n\n")
	start := len(entries) - contextEntries
	if start < 0 {
		start = 0
	}
	// Newest first.
	for i := len(entries) - 1; i >= start; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "### %s (%s)\n", e.FileName, e.AnalyzedAt)
		if e.DocumentType != "" {
			fmt.Fprintf(&b, "- document type: %s\n", e.DocumentType)
		}
		if len(e.Issues) > 0 {
			b.WriteString("- detected issues:\n")
			for _, issue := range e.Issues {
				fmt.Fprintf(&b, "  - %s\n", issue)
			}
		}
		fmt.Fprintf(&b, "- summary: %s\n\n", strings.Join(headLines(e.Summary, 3), " "))
	}
	return b.String()
}

func headLines(s string, n int) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}
