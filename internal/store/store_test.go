package store

import (
	"testing"

	"github.com/nakatsu/shirabe/internal/models"
)

func TestStore_AddUniqueByPath(t *testing.T) {
	s := New()
	if !s.Add(models.NewFileRecord("/docs/a.pdf")) {
		t.Fatal("first add should succeed")
	}
	if s.Add(models.NewFileRecord("/docs/a.pdf")) {
		t.Error("duplicate path should be a no-op")
	}
	if !s.Add(models.NewFileRecord("/docs/b.pdf")) {
		t.Error("distinct path should be added")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 records, got %d", s.Len())
	}
	// Re-adding repeatedly never creates a second record with the same path.
	for i := 0; i < 5; i++ {
		s.Add(models.NewFileRecord("/docs/b.pdf"))
	}
	seen := map[string]int{}
	for _, r := range s.Records() {
		seen[r.Path]++
	}
	for path, n := range seen {
		if n != 1 {
			t.Errorf("path %s tracked %d times", path, n)
		}
	}
}

func TestStore_OrderPreserved(t *testing.T) {
	s := New()
	paths := []string{"/x/3.pdf", "/x/1.pdf", "/x/2.pdf"}
	for _, p := range paths {
		s.Add(models.NewFileRecord(p))
	}
	recs := s.Records()
	for i, p := range paths {
		if recs[i].Path != p {
			t.Errorf("index %d: got %s, want %s", i, recs[i].Path, p)
		}
	}
}

func TestStore_CheckedOps(t *testing.T) {
	s := New()
	s.Add(models.NewFileRecord("/d/a.pdf"))
	s.Add(models.NewFileRecord("/d/b.pdf"))
	s.Add(models.NewFileRecord("/d/c.pdf"))

	s.SetChecked(0, true)
	s.SetChecked(2, true)
	checked := s.Checked()
	if len(checked) != 2 || checked[0].Name != "a.pdf" || checked[1].Name != "c.pdf" {
		t.Errorf("unexpected checked set: %+v", checked)
	}

	s.SelectAll()
	if len(s.Checked()) != 3 {
		t.Error("SelectAll should check everything")
	}
	s.SelectNone()
	if len(s.Checked()) != 0 {
		t.Error("SelectNone should uncheck everything")
	}

	// Checked toggles never touch result fields.
	rec := s.FindByName("b.pdf")
	rec.Result = "fine"
	s.SetChecked(1, true)
	s.SetChecked(1, false)
	if rec.Result != "fine" || rec.ResultIsError {
		t.Error("toggling checked must not alter results")
	}
}

func TestStore_Lookups(t *testing.T) {
	s := New()
	s.Add(models.NewFileRecord("/one/report.pdf"))
	s.Add(models.NewFileRecord("/two/report.pdf"))

	if got := s.FindByPath("/two/report.pdf"); got == nil || got.Path != "/two/report.pdf" {
		t.Errorf("FindByPath returned %+v", got)
	}
	if s.FindByPath("/missing.pdf") != nil {
		t.Error("FindByPath should return nil for unknown path")
	}
	// Name collision: first match wins. Both records share the display name.
	if got := s.FindByName("report.pdf"); got == nil || got.Path != "/one/report.pdf" {
		t.Errorf("FindByName should return the first match, got %+v", got)
	}
	if s.FindByName("nope.pdf") != nil {
		t.Error("FindByName should return nil for unknown name")
	}
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := New()
	s.Add(models.NewFileRecord("/d/a.pdf"))
	s.Add(models.NewFileRecord("/d/b.pdf"))
	s.Remove(0)
	if s.Len() != 1 || s.Records()[0].Name != "b.pdf" {
		t.Errorf("unexpected records after remove: %+v", s.Records())
	}
	s.Remove(99) // out of range: ignored
	if s.Len() != 1 {
		t.Error("out-of-range remove should be a no-op")
	}
	s.Clear()
	if s.Len() != 0 {
		t.Error("Clear should drop all records")
	}
}

func TestStore_Flags(t *testing.T) {
	s := New()
	if f := s.Flags(); f.HasFiles || f.HasChecked || f.HasResultsSelected || f.Busy {
		t.Errorf("empty store flags should all be false, got %+v", f)
	}

	s.Add(models.NewFileRecord("/d/a.pdf"))
	s.Add(models.NewFileRecord("/d/b.pdf"))
	if f := s.Flags(); !f.HasFiles || f.HasChecked {
		t.Errorf("got %+v", f)
	}

	s.SetChecked(0, true)
	if f := s.Flags(); !f.HasChecked || f.HasResultsSelected {
		t.Errorf("checked without result: got %+v", f)
	}

	a := s.FindByName("a.pdf")
	a.Result = "ok"
	if f := s.Flags(); !f.HasResultsSelected {
		t.Error("checked record with result should set HasResultsSelected")
	}

	// An error result does not count as a selected result.
	a.ResultIsError = true
	if f := s.Flags(); f.HasResultsSelected {
		t.Error("error result must not set HasResultsSelected")
	}

	b := s.FindByName("b.pdf")
	b.Analyzing = true
	if f := s.Flags(); !f.Busy {
		t.Error("analyzing record should set Busy")
	}
	s.ClearAnalyzing()
	if f := s.Flags(); f.Busy {
		t.Error("ClearAnalyzing should reset Busy")
	}
}
