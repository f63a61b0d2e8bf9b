// Package cli provides CLI output helpers for Shirabe.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nakatsu/shirabe/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteRecords writes file records to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteRecords(w io.Writer, records []*models.FileRecord, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, rec := range records {
		writeOneRecord(w, rec)
	}
	return nil
}

func writeOneRecord(w io.Writer, rec *models.FileRecord) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s %s\n", recordGlyph(rec), rec.Name)
	if rec.DocumentType != "" {
		fmt.Fprintf(w, "Type: %s\n", rec.DocumentType)
	}
	if rec.AnalyzedAt != "" {
		fmt.Fprintf(w, "Analyzed: %s\n", rec.AnalyzedAt)
	}
	if rec.Result != "" {
		fmt.Fprintf(w, "\n%s\n", rec.Result)
	}
	fmt.Fprintln(w)
}

func recordGlyph(rec *models.FileRecord) string {
	switch {
	case rec.ResultIsError:
		return "⚠"
	case rec.Result != "":
		return "✓"
	default:
		return "·"
	}
}

// WriteHistory writes history entries to w in the given format.
func WriteHistory(w io.Writer, entries []*models.HistoryEntry, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s", e.AnalyzedAt, e.FileName)
		if e.DocumentType != "" {
			fmt.Fprintf(w, "  [%s]", e.DocumentType)
		}
		fmt.Fprintln(w)
		if len(e.Issues) > 0 {
			for _, issue := range e.Issues {
				fmt.Fprintf(w, "    %s\n", Truncate(issue, 120))
			}
		} else if e.Summary != "" {
			fmt.Fprintf(w, "    %s\n", TruncateWords(e.Summary, 20))
		}
	}
	return nil
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
