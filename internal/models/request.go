package models

// Analysis modes.
const (
	ModeIndividual = "individual"
	ModeCompare    = "compare"
)

// DocTypeComparative labels records whose result came from a compare run.
const DocTypeComparative = "comparative analysis"

// AnalyzeRequest is the single backend request issued per analysis run.
type AnalyzeRequest struct {
	Paths             []string `json:"paths"`
	Mode              string   `json:"mode"`
	CustomInstruction string   `json:"custom_instruction"`
}

// GuidelineRequest is the backend request for a guideline-generation run.
// Folder is where the generated guideline document is persisted.
type GuidelineRequest struct {
	Paths             []string `json:"paths"`
	Folder            string   `json:"folder"`
	CustomInstruction string   `json:"custom_instruction"`
}
