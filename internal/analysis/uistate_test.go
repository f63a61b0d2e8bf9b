package analysis

import (
	"testing"

	"github.com/nakatsu/shirabe/internal/store"
)

func TestDeriveUIState(t *testing.T) {
	tests := []struct {
		name        string
		flags       store.Flags
		instruction bool
		want        UIState
	}{
		{
			name:  "empty store disables everything",
			flags: store.Flags{},
			want: UIState{
				AnalyzeDisabled: true, CompareDisabled: true, ClearDisabled: true,
				SelectAllDisabled: true, SelectNoneDisabled: true,
				GuidelinesDisabled: true, InstructionDisabled: true,
				CopyInstructionDisabled: true,
			},
		},
		{
			name:  "files without selection",
			flags: store.Flags{HasFiles: true},
			want: UIState{
				AnalyzeDisabled: true, CompareDisabled: true,
				GuidelinesDisabled: true, InstructionDisabled: true,
				CopyInstructionDisabled: true,
			},
		},
		{
			name:  "checked files ready to analyze",
			flags: store.Flags{HasFiles: true, HasChecked: true},
			want: UIState{
				GuidelinesDisabled:      true,
				CopyInstructionDisabled: true,
			},
		},
		{
			name:  "busy disables analyze and compare",
			flags: store.Flags{HasFiles: true, HasChecked: true, Busy: true},
			want: UIState{
				AnalyzeDisabled: true, CompareDisabled: true, ClearDisabled: true,
				GuidelinesDisabled: true, InstructionDisabled: true,
				CopyInstructionDisabled: true,
			},
		},
		{
			name:  "results selected suppress compare and enable guidelines",
			flags: store.Flags{HasFiles: true, HasChecked: true, HasResultsSelected: true},
			want: UIState{
				CompareDisabled:         true,
				CopyInstructionDisabled: true,
			},
		},
		{
			name:        "copy instruction needs results and instruction text",
			flags:       store.Flags{HasFiles: true, HasChecked: true, HasResultsSelected: true},
			instruction: true,
			want: UIState{
				CompareDisabled: true,
			},
		},
		{
			name:        "instruction text alone does not enable copy",
			flags:       store.Flags{HasFiles: true, HasChecked: true},
			instruction: true,
			want: UIState{
				GuidelinesDisabled:      true,
				CopyInstructionDisabled: true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveUIState(tt.flags, tt.instruction)
			if got != tt.want {
				t.Errorf("DeriveUIState(%+v, %v)\n got  %+v\n want %+v", tt.flags, tt.instruction, got, tt.want)
			}
		})
	}
}
