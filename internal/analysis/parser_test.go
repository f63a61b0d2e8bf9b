package analysis

import (
	"reflect"
	"testing"
)

func TestParseIndividual(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     map[string]string
	}{
		{
			name:     "single section without leading newline",
			response: "## 📄 a.pdf\n---\nOK\n",
			want:     map[string]string{"a.pdf": "OK"},
		},
		{
			name:     "empty input",
			response: "",
			want:     map[string]string{},
		},
		{
			name:     "no sections",
			response: "free text that mentions no marker",
			want:     map[string]string{},
		},
		{
			name: "two sections with separators",
			response: "\n## 📄 contract.pdf\n---\n✓ consistent\n\n" +
				"\n## 📄 estimate.pdf\n---\n⚠ totals differ\n\n",
			want: map[string]string{
				"contract.pdf": "✓ consistent",
				"estimate.pdf": "⚠ totals differ",
			},
		},
		{
			name:     "separator line is optional",
			response: "\n## 📄 a.pdf\ncontent without dashes\n",
			want:     map[string]string{"a.pdf": "content without dashes"},
		},
		{
			name:     "only one separator line stripped",
			response: "\n## 📄 a.pdf\n---\n---\nbody\n",
			want:     map[string]string{"a.pdf": "---\nbody"},
		},
		{
			name:     "preamble before first marker dropped",
			response: "ignored preamble\n## 📄 a.pdf\n---\nbody\n",
			want:     map[string]string{"a.pdf": "body"},
		},
		{
			name:     "empty section name dropped",
			response: "\n## 📄 \n---\norphan\n\n## 📄 b.pdf\n---\nkept\n",
			want:     map[string]string{"b.pdf": "kept"},
		},
		{
			name:     "duplicate name last occurrence wins",
			response: "\n## 📄 a.pdf\n---\nfirst\n\n## 📄 a.pdf\n---\nsecond\n",
			want:     map[string]string{"a.pdf": "second"},
		},
		{
			name:     "name is trimmed",
			response: "\n## 📄   spaced.pdf  \n---\nbody\n",
			want:     map[string]string{"spaced.pdf": "body"},
		},
		{
			name:     "section at end of string without trailing newline",
			response: "\n## 📄 a.pdf\n---",
			want:     map[string]string{"a.pdf": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIndividual(tt.response)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseIndividual() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseIndividual_Idempotent(t *testing.T) {
	response := "\n## 📄 a.pdf\n---\nbody A\n\n## 📄 b.pdf\n---\nbody B\n"
	first := ParseIndividual(response)
	second := ParseIndividual(response)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("parsing is not idempotent: %#v vs %#v", first, second)
	}
}

func TestParseIndividual_UntrackedNamesStayInMapping(t *testing.T) {
	// The parser knows nothing about tracked files: a section for an unknown
	// name still appears in the mapping. Discarding it is the orchestrator's
	// job when it applies results to the store.
	response := "\n## 📄 tracked.pdf\n---\nyes\n\n## 📄 stranger.pdf\n---\nalso here\n"
	got := ParseIndividual(response)
	if len(got) != 2 {
		t.Fatalf("expected both sections in mapping, got %#v", got)
	}
	if got["stranger.pdf"] != "also here" {
		t.Errorf("untracked section content lost: %#v", got)
	}
}
