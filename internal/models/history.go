package models

// HistoryEntry is one persisted analysis record, loaded at session start and
// fed into prompts as context for later runs.
type HistoryEntry struct {
	FilePath     string   `json:"file_path"`
	FileName     string   `json:"file_name"`
	Folder       string   `json:"folder"`
	AnalyzedAt   string   `json:"analyzed_at"`
	DocumentType string   `json:"document_type,omitempty"`
	Summary      string   `json:"summary"`
	Issues       []string `json:"issues,omitempty"`
}
