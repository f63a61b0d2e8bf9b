package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nakatsu/shirabe/internal/guidelines"
)

// promptIndividual builds the prompt for one document. The analyzer sees the
// staged file by name; guidance, custom instructions and prior history ride
// along as sections.
func promptIndividual(name, guidelineSection, instructionSection, historyContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a construction-document checker. Analyze the attached PDF "%s".

Check the document for:
- internal inconsistencies (dates, amounts, names, quantities)
- missing required fields
- calculation errors

Report format:
- one line per finding
- prefix problems with "⚠"
- prefix confirmations with "✓"
- answer concisely, no preamble
`, name)
	b.WriteString(guidelineSection)
	b.WriteString(instructionSection)
	b.WriteString(historyContext)
	return b.String()
}

// promptCompare builds the prompt for a cross-document comparison run.
func promptCompare(names []string, guidelineSection, instructionSection, historyContext string) string {
	var b strings.Builder
	b.WriteString("You are a construction-document checker. Compare the attached PDFs against each other:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString(`
Check across the documents for:
- mismatched amounts, dates, names or quantities
- references in one document missing from another
- contradictory terms

Report format:
- one line per finding, naming the documents involved
- prefix problems with "⚠"
- prefix confirmations with "✓"
- answer concisely, no preamble
`)
	b.WriteString(guidelineSection)
	b.WriteString(instructionSection)
	b.WriteString(historyContext)
	return b.String()
}

// promptGuidelines asks the analyzer to fold detected issues and operator
// instructions into the folder's guideline document. The response must be the
// JSON object alone.
func promptGuidelines(existing *guidelines.Guidelines, issues, instructions, types []string) string {
	var b strings.Builder
	b.WriteString(`You maintain checking guidelines for a folder of construction documents.
Merge the findings below into a guideline document. Keep items short and
actionable, at most five per section. Respond with ONLY a JSON object of the
form {"common": [...], "categories": {"<document type>": [...]}}.
`)
	if existing != nil {
		if data, err := json.Marshal(existing); err == nil {
			b.WriteString("\n## Current guidelines\n")
			b.Write(data)
			b.WriteString("\n")
		}
	}
	if len(types) > 0 {
		b.WriteString("\n## Document types present\n")
		for _, t := range types {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(issues) > 0 {
		b.WriteString("\n## Detected issues\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	if len(instructions) > 0 {
		b.WriteString("\n## Operator instructions\n")
		for _, inst := range instructions {
			fmt.Fprintf(&b, "- %s\n", inst)
		}
	}
	return b.String()
}

// customSection wraps a non-empty operator instruction as a prompt section.
func customSection(instruction string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return ""
	}
	return "\n## Additional instructions from the operator\n" + instruction + "\n"
}
