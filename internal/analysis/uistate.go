package analysis

import "github.com/nakatsu/shirabe/internal/store"

// UIState is the fixed set of enablement decisions derived from aggregate
// store flags. The UI layer applies these verbatim.
type UIState struct {
	AnalyzeDisabled         bool `json:"analyze_disabled"`
	CompareDisabled         bool `json:"compare_disabled"`
	ClearDisabled           bool `json:"clear_disabled"`
	SelectAllDisabled       bool `json:"select_all_disabled"`
	SelectNoneDisabled      bool `json:"select_none_disabled"`
	GuidelinesDisabled      bool `json:"guidelines_disabled"`
	InstructionDisabled     bool `json:"instruction_disabled"`
	CopyInstructionDisabled bool `json:"copy_instruction_disabled"`
}

// DeriveUIState maps aggregate flags to enablement decisions. Compare is also
// suppressed once any checked file already carries a non-error result: compare
// runs are for files not yet cross-checked, and this avoids accidental
// re-comparison.
func DeriveUIState(f store.Flags, hasCustomInstruction bool) UIState {
	return UIState{
		AnalyzeDisabled:         f.Busy || !f.HasChecked,
		CompareDisabled:         f.Busy || !f.HasChecked || f.HasResultsSelected,
		ClearDisabled:           f.Busy || !f.HasFiles,
		SelectAllDisabled:       !f.HasFiles,
		SelectNoneDisabled:      !f.HasFiles,
		GuidelinesDisabled:      f.Busy || !f.HasResultsSelected,
		InstructionDisabled:     f.Busy || !f.HasChecked,
		CopyInstructionDisabled: f.Busy || !f.HasResultsSelected || !hasCustomInstruction,
	}
}
