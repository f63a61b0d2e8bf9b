// Package analysis implements the analysis run state machine: result parsing,
// UI-state derivation, and the orchestrators for analysis and guideline runs.
package analysis

import "strings"

// sectionMarker delimits per-file sections in an individual-mode response.
// The backend emits "\n## 📄 <name>\n---\n<content>\n" blocks; the literal is
// load-bearing for wire compatibility and must not change.
const sectionMarker = "\n## 📄 "

// ParseIndividual splits an individual-mode response into a display-name →
// content mapping. A section starts at a marker line; the first line of each
// section is the file name, an optional single "---" line follows, and the
// content runs to the next marker or end of input. Sections with an empty name
// are dropped. When a name repeats, the last occurrence wins; duplicate
// display names across sections are ambiguous in the wire format, so result
// attribution for them is indeterminate.
func ParseIndividual(response string) map[string]string {
	sections := make(map[string]string)
	if response == "" {
		return sections
	}
	chunks := strings.Split("\n"+response, sectionMarker)
	// chunks[0] is the preamble before the first marker; discard it.
	for _, chunk := range chunks[1:] {
		name := chunk
		rest := ""
		if i := strings.Index(chunk, "\n"); i >= 0 {
			name, rest = chunk[:i], chunk[i+1:]
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if rest == "---" {
			rest = ""
		} else {
			rest = strings.TrimPrefix(rest, "---\n")
		}
		sections[name] = strings.TrimSpace(rest)
	}
	return sections
}
