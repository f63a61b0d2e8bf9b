// Package guidelines stores per-folder checking guidelines and classifies
// documents by file name. Guidelines live in a .guidelines.json file inside
// the project folder so they travel with the documents.
package guidelines

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fileName is the guideline document inside a project folder.
const fileName = ".guidelines.json"

// maxItemsPerSection caps how many checkpoints of one section feed a prompt.
const maxItemsPerSection = 5

// Guidelines holds checking guidelines grouped by document type.
type Guidelines struct {
	// Common holds checkpoints that apply to every document.
	Common []string `json:"common"`
	// Categories maps a document type to its checkpoints.
	Categories map[string][]string `json:"categories"`
}

// typeKeywords maps lowercase file-name fragments to a document type label.
var typeKeywords = []struct {
	keyword string
	label   string
}{
	{"contract", "contract"},
	{"agreement", "contract"},
	{"estimate", "estimate"},
	{"quote", "estimate"},
	{"invoice", "invoice"},
	{"billing", "invoice"},
	{"traffic", "traffic control record"},
	{"guard", "traffic control record"},
	{"survey", "survey drawing"},
	{"profile", "survey drawing"},
	{"cross-section", "survey drawing"},
	{"plan", "construction plan"},
}

// DetectDocumentTypes infers document types from a display name. A name can
// match several types; the result preserves keyword order without duplicates.
func DetectDocumentTypes(name string) []string {
	lower := strings.ToLower(name)
	var types []string
	seen := map[string]bool{}
	for _, tk := range typeKeywords {
		if strings.Contains(lower, tk.keyword) && !seen[tk.label] {
			types = append(types, tk.label)
			seen[tk.label] = true
		}
	}
	return types
}

// Path returns the guideline file path for a project folder.
func Path(folder string) string {
	return filepath.Join(folder, fileName)
}

// Load reads the guidelines for folder. Returns (nil, nil) when the folder
// has none.
func Load(folder string) (*Guidelines, error) {
	data, err := os.ReadFile(Path(folder))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read guidelines: %w", err)
	}
	var g Guidelines
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse guidelines: %w", err)
	}
	return &g, nil
}

// Save writes g to the folder's guideline file.
func Save(folder string, g *Guidelines) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal guidelines: %w", err)
	}
	if err := os.WriteFile(Path(folder), data, 0644); err != nil {
		return fmt.Errorf("write guidelines: %w", err)
	}
	return nil
}

// Relevant renders the guideline items applying to the given display names:
// the common section plus every category matching a detected document type,
// capped per section. Returns "" when nothing applies.
func Relevant(g *Guidelines, names ...string) string {
	if g == nil {
		return ""
	}
	var types []string
	seen := map[string]bool{}
	for _, name := range names {
		for _, t := range DetectDocumentTypes(name) {
			if !seen[t] {
				types = append(types, t)
				seen[t] = true
			}
		}
	}

	var lines []string
	if len(g.Common) > 0 {
		lines = append(lines, "[common]")
		lines = append(lines, capItems(g.Common)...)
	}
	for _, t := range types {
		if items, ok := g.Categories[t]; ok && len(items) > 0 {
			lines = append(lines, fmt.Sprintf("[%s]", t))
			lines = append(lines, capItems(items)...)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func capItems(items []string) []string {
	if len(items) > maxItemsPerSection {
		return items[:maxItemsPerSection]
	}
	return items
}

// ExtractJSON pulls the outermost JSON object out of a backend response that
// may wrap it in prose or a code fence. Returns "" when no braces are found.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Render formats g as a human-readable markdown summary.
func Render(g *Guidelines) string {
	var b strings.Builder
	b.WriteString("## Guidelines\n\n")
	if len(g.Common) > 0 {
		b.WriteString("### common\n")
		for _, item := range g.Common {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	for _, cat := range sortedKeys(g.Categories) {
		fmt.Fprintf(&b, "\n### %s\n", cat)
		for _, item := range g.Categories[cat] {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return b.String()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
