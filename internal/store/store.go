// Package store owns the canonical list of tracked files and their per-file
// analysis state.
package store

import (
	"sync"

	"github.com/nakatsu/shirabe/internal/models"
)

// Flags are the aggregate booleans the UI-state deriver consumes.
type Flags struct {
	HasFiles bool
	// HasChecked is true when at least one record is checked.
	HasChecked bool
	// HasResultsSelected is true when at least one checked record carries a
	// non-error result.
	HasResultsSelected bool
	// Busy is true while any record is part of an in-flight run.
	Busy bool
}

// Store holds tracked FileRecords in insertion order. Records are handed out
// by pointer and mutated in place; the store never swaps its list out from
// under a running orchestrator. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records []*models.FileRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Add inserts rec unless a record with the same path already exists.
// Returns false on a duplicate path.
func (s *Store) Add(rec *models.FileRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Path == rec.Path {
			return false
		}
	}
	s.records = append(s.records, rec)
	return true
}

// Remove deletes the record at index i. Out-of-range indexes are ignored and
// reported as false.
func (s *Store) Remove(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.records) {
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return true
}

// RemoveByPath deletes the record with the given path, reporting whether one
// was found.
func (s *Store) RemoveByPath(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.Path == path {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes all records.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// SetChecked flips the checked flag of the record at index i.
// It has no side effect on the record's result fields. Out-of-range indexes
// are ignored and reported as false.
func (s *Store) SetChecked(i int, v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.records) {
		return false
	}
	s.records[i].Checked = v
	return true
}

// SelectAll checks every record.
func (s *Store) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		r.Checked = true
	}
}

// SelectNone unchecks every record.
func (s *Store) SelectNone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		r.Checked = false
	}
}

// FindByPath returns the record with the given path, or nil.
func (s *Store) FindByPath(path string) *models.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Path == path {
			return r
		}
	}
	return nil
}

// FindByName returns the first record with the given display name, or nil.
// The individual-mode wire format identifies files by display name, so this
// lookup is what routes results back to records. Two tracked files sharing a
// name make the attribution indeterminate: the first match wins here.
func (s *Store) FindByName(name string) *models.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Checked returns the checked records in insertion order.
func (s *Store) Checked() []*models.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.FileRecord
	for _, r := range s.records {
		if r.Checked {
			out = append(out, r)
		}
	}
	return out
}

// Records returns a snapshot of the record slice. The returned slice is a
// copy; the records themselves are shared.
func (s *Store) Records() []*models.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.FileRecord(nil), s.records...)
}

// Flags computes the aggregate flags over the current records.
func (s *Store) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f Flags
	f.HasFiles = len(s.records) > 0
	for _, r := range s.records {
		if r.Checked {
			f.HasChecked = true
			if r.HasResult() {
				f.HasResultsSelected = true
			}
		}
		if r.Analyzing {
			f.Busy = true
		}
	}
	return f
}

// Update runs fn under the store lock. The orchestrator mutates records it
// holds by reference; routing those writes through Update keeps them ordered
// against concurrent readers of Flags and Records. The lock is not reentrant:
// fn must not call other Store methods. Look records up first and mutate them
// inside fn.
func (s *Store) Update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// ClearAnalyzing resets the analyzing flag on every record. Called on every
// run exit so no record is left marked in-flight.
func (s *Store) ClearAnalyzing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		r.Analyzing = false
	}
}
