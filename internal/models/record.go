// Package models defines core data structures for tracked files, runs, and events.
package models

import "path/filepath"

// FileRecord is one tracked document. Path is the identity key; no two records
// in a store share a path. Records are mutated in place by the orchestrator
// (result fields, Analyzing) and by user toggles (Checked).
type FileRecord struct {
	Path string `json:"path"`
	Name string `json:"name"`
	// Checked marks the file for inclusion in the next analysis or guideline run.
	Checked bool `json:"checked"`
	// Result holds the last analysis output, or an error message when
	// ResultIsError is true. ResultIsError is meaningless while Result is empty.
	Result        string `json:"result,omitempty"`
	ResultIsError bool   `json:"result_is_error,omitempty"`
	// AnalyzedAt is when Result was produced ("2006-01-02 15:04:05").
	AnalyzedAt   string `json:"analyzed_at,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	// Embedded is true when Result came from data stored inside the PDF itself
	// rather than a fresh run.
	Embedded bool `json:"embedded,omitempty"`
	// Analyzing is true only while the file is part of an in-flight run and no
	// completion notification has arrived for it yet.
	Analyzing bool `json:"analyzing,omitempty"`
	// CompareMode is true when Result was produced by a compare-style run
	// (one shared result across multiple files).
	CompareMode bool `json:"compare_mode,omitempty"`
}

// NewFileRecord returns an unchecked record for path with the display name
// derived from the path.
func NewFileRecord(path string) *FileRecord {
	return &FileRecord{Path: path, Name: filepath.Base(path)}
}

// HasResult reports whether the record carries a non-error analysis result.
func (r *FileRecord) HasResult() bool {
	return r.Result != "" && !r.ResultIsError
}
